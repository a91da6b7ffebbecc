// Command folio runs the bookstore engine: schema migrations, the expiry
// reconciler and the metrics endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "folio: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "folio",
		Usage:   "multi-seller bookstore order and inventory engine",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"FOLIO_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			reconcileCommand(),
			serveCommand(),
		},
	}
}
