package main

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/cmd/quarry-depot/render"
)

// depotVersion is the module's semantic version; commit is stamped via
// ldflags at build time, mirroring the teacher's cmd/quarry/main.go.
const depotVersion = "0.1.0"

// VersionResponse is the rendered output of the version command.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand reports the built binary's version and commit.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(VersionResponse{Version: depotVersion, Commit: commit})
	}
}
