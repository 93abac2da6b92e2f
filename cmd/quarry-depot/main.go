// Package main provides the quarry-depot CLI entrypoint.
//
// Usage:
//
//	quarry-depot <command> [subcommand] [options]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "quarry-depot",
		Usage:          "Content-addressed crawl depot and orchestrator",
		Version:        fmt.Sprintf("%s (commit: %s)", depotVersion, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			RegisterCommand(),
			RunCommand(),
			StatusCommand(),
			InspectCommand(),
			MergeCommand(),
			SyncCommand(),
			VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// exitErrHandler already handled exit for cli.ExitCoder errors; this
		// branch only covers errors that somehow bypassed it.
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
