// Package cli implements the archiver command line: the HTTP server plus
// one-shot commands that drive the same services against the local
// database and archive root.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-archive-backend/internal/app"
	"github.com/tbourn/go-archive-backend/internal/config"
	"github.com/tbourn/go-archive-backend/internal/sysutil"
)

// Execute loads an optional .env file and runs the root command.
func Execute(version string) error {
	_ = godotenv.Load()
	return NewRootCommand(version).ExecuteContext(context.Background())
}

// NewRootCommand returns the archiver command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "archiver",
		Short:         "Archive web pages as immutable, versioned snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "archiver %s\n", version)
			},
		},
		serveCommand(version),
		captureCommand(version),
		websitesCommand(version),
		versionsCommand(version),
		submitCommand(version),
		deleteCommand(version),
		quotaCommand(version),
		rebuildIndexCommand(version),
	)
	return root
}

// withApp loads configuration, logs to stderr, wires the services and
// closes them once fn returns.
func withApp(cmd *cobra.Command, version string, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
