package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/willibrandon/gorestore/cmd/gorestore/cli"
	"github.com/willibrandon/gorestore/cmd/gorestore/commands"
	"github.com/willibrandon/gorestore/cmd/gorestore/output"
)

func main() {
	// Cancel restores on SIGINT or SIGTERM; summaries of cancelled projects
	// are still reported.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := output.DefaultConsole()
	app := cli.New(console)
	app.AddCommand(commands.NewRestoreCommand(app))
	app.AddCommand(commands.NewVersionCommand(console))

	err := app.Execute(ctx, os.Args[1:])
	var exit *cli.ExitError
	if err != nil && !errors.As(err, &exit) {
		// Print error to stderr since SilenceErrors is true in the root command
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(cli.ExitCode(err))
}
