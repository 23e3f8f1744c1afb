// Command archiver serves and manages the web page archive.
package main

import (
	"fmt"
	"os"

	"github.com/tbourn/go-archive-backend/internal/cli"
	"github.com/tbourn/go-archive-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
