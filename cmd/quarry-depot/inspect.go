package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/cmd/quarry-depot/render"
	"github.com/justapithecus/quarry-depot/cmd/quarry-depot/tui"
)

// WorkspaceResponse is the rendered view of the current-run workspace, if
// one is in progress.
type WorkspaceResponse struct {
	Exists           bool     `json:"exists"`
	Parent           string   `json:"parent,omitempty"`
	CommitHash       string   `json:"commit_hash,omitempty"`
	DependencyFreeze []string `json:"dependency_freeze,omitempty"`
	StartedAt        string   `json:"started_at,omitempty"`
}

// InspectCommand reports the on-disk current-run workspace without
// requiring an in-process BeginRun session (depot.InspectWorkspace reads
// it back directly, per spec §3 — a CLI invocation is a separate,
// short-lived process from whatever ran `run`).
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Show the current-run workspace, if any",
		Flags:  ReadOnlyFlags(),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := openDepot(ctx, cfg, depotOptions(cfg)...)
	if err != nil {
		return err
	}

	info, exists, err := d.InspectWorkspace()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resp := WorkspaceResponse{Exists: exists}
	if exists {
		if info.Parent != nil {
			resp.Parent = *info.Parent
		}
		if info.RunCtx.CommitHash != nil {
			resp.CommitHash = *info.RunCtx.CommitHash
		}
		resp.DependencyFreeze = info.RunCtx.DependencyFreeze
		resp.StartedAt = info.StartedAt.UTC().Format(time.RFC3339)
	}

	if c.Bool("tui") {
		view := tui.WorkspaceView{
			Exists:           resp.Exists,
			Parent:           resp.Parent,
			CommitHash:       resp.CommitHash,
			DependencyFreeze: resp.DependencyFreeze,
			StartedAt:        resp.StartedAt,
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.RenderTUI("inspect_workspace", view)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(resp)
}
