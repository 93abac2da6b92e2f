package main

import "github.com/urfave/cli/v2"

// Shared flags across subcommands.
var (
	// ConfigFlag points at the quarry-depot.yaml a subcommand loads.
	ConfigFlag = &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to quarry-depot.yaml",
		Required: true,
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag is accepted by read-only commands; the renderer emits no
	// color codes in any format, so it has no effect on output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables the bubbletea inspector for commands that support it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (status, inspect only)",
	}
)

// ReadOnlyFlags returns the flags shared by every read-only command.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, FormatFlag, NoColorFlag, TUIFlag}
}
