package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-archive-backend/internal/app"
	"github.com/tbourn/go-archive-backend/internal/capture"
	"github.com/tbourn/go-archive-backend/internal/domain"
	"github.com/tbourn/go-archive-backend/internal/services"
	"github.com/tbourn/go-archive-backend/internal/utils"
)

func serveCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return a.Serve(ctx)
			})
		},
	}
}

func captureCommand(version string) *cobra.Command {
	var (
		language string
		persona  string
		lat, lon float64
		accuracy float64
	)
	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture a page now and file it as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := capture.Request{URL: args[0], Language: language}
			if persona != "" {
				req.PersonaRef = &persona
			}
			latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
			if latSet != lonSet {
				return errors.New("--lat and --lon must be given together")
			}
			if latSet {
				req.Geolocation = &capture.Geolocation{Latitude: lat, Longitude: lon, Accuracy: accuracy}
			}

			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				w, m, err := a.Captures.Run(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), struct {
					Website *domain.ArchivedWebsite `json:"website"`
					Memento *domain.Memento         `json:"memento"`
				}{w, m})
			})
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "BCP 47 language tag to capture with, e.g. fr-CA")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude to capture from")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude to capture from")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "geolocation accuracy in meters")
	cmd.Flags().StringVar(&persona, "persona", "", "persona reference to tag the capture with")
	return cmd
}

func websitesCommand(version string) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "websites",
		Short: "List archived websites, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				items, total, err := a.Registry.ListPage(ctx, page, pageSize)
				if err != nil {
					return err
				}
				t := newTable(cmd)
				t.AppendHeader(table.Row{"ID", "URL", "Persona", "Created"})
				for _, w := range items {
					t.AppendRow(table.Row{w.ID, w.URI, deref(w.PersonaRef), w.CreatedAt.UTC().Format(time.RFC3339)})
				}
				t.SetCaption("page %d of %d (%d websites)", page, utils.TotalPages(total, pageSize), total)
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", utils.DefaultPage, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", utils.DefaultPageSize, "websites per page")
	return cmd
}

func versionsCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <website-id>",
		Short: "List every version of a website, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				items, err := a.Mementos.ListVersions(ctx, args[0])
				if err != nil {
					return err
				}
				t := newTable(cmd)
				t.AppendHeader(table.Row{"Version", "Memento ID", "Captured", "Title", "External"})
				for _, m := range items {
					t.AppendRow(table.Row{m.Version, m.ID, m.CapturedAt.UTC().Format(time.RFC3339), m.Title, deref(m.ExternalArchiveRef)})
				}
				t.Render()
				return nil
			})
		},
	}
}

func submitCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <memento-id>",
		Short: "Submit a version to the external archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				ref, err := a.Submitter.Submit(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
				return nil
			})
		},
	}
}

func deleteCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <website-id>",
		Short: "Delete a website with all of its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				report, err := a.Lifecycle.DeleteWebsite(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func quotaCommand(version string) *cobra.Command {
	var (
		enable, disable bool
		limit           int
	)
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show or change the external archive daily quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if enable && disable {
				return errors.New("--enable and --disable are mutually exclusive")
			}
			var (
				enabled  *bool
				newLimit *int
			)
			if enable || disable {
				enabled = &enable
			}
			if cmd.Flags().Changed("limit") {
				newLimit = &limit
			}

			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				var (
					st  services.QuotaStatus
					err error
				)
				if enabled != nil || newLimit != nil {
					st, err = a.Quota.Configure(ctx, enabled, newLimit)
				} else {
					st, err = a.Quota.Status(ctx)
				}
				if err != nil {
					return err
				}
				t := newTable(cmd)
				t.AppendRows([]table.Row{
					{"enabled", strconv.FormatBool(st.Enabled)},
					{"daily limit", st.DailyLimit},
					{"submitted today", st.SubmittedToday},
					{"last reset", st.LastResetDate},
					{"can submit", strconv.FormatBool(st.CanSubmit)},
				})
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "allow submissions")
	cmd.Flags().BoolVar(&disable, "disable", false, "block submissions")
	cmd.Flags().IntVar(&limit, "limit", 0, "submissions allowed per day")
	return cmd
}

func rebuildIndexCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index <website-id>",
		Short: "Regenerate a website's metadata.json from the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, version, func(ctx context.Context, a *app.App) error {
				idx, err := a.Mementos.RebuildIndex(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), idx)
			})
		},
	}
}

func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
