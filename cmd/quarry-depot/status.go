package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/cmd/quarry-depot/render"
	"github.com/justapithecus/quarry-depot/cmd/quarry-depot/tui"
)

// StatusResponse is the rendered view of the depot's current leaf status
// (spec §4.D get_complete_status).
type StatusResponse struct {
	HasStatus      bool     `json:"has_status"`
	StatusID       string   `json:"status_id,omitempty"`
	Parent         string   `json:"parent,omitempty"`
	IntegratedRuns []string `json:"integrated_runs,omitempty"`
}

// StatusCommand reports the depot's current leaf status.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the depot's current leaf status",
		Flags:  ReadOnlyFlags(),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := openDepot(ctx, cfg, depotOptions(cfg)...)
	if err != nil {
		return err
	}

	leaf, err := d.GetCompleteStatus(ctx)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resp := StatusResponse{HasStatus: leaf.StatusID != ""}
	if resp.HasStatus {
		resp.StatusID = leaf.StatusID
		resp.IntegratedRuns = leaf.Context.IntegratedRuns
		if leaf.Context.Parent != nil {
			resp.Parent = *leaf.Context.Parent
		}
	}

	if c.Bool("tui") {
		view := tui.StatusView{
			HasStatus:      resp.HasStatus,
			StatusID:       resp.StatusID,
			Parent:         resp.Parent,
			IntegratedRuns: resp.IntegratedRuns,
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.RenderTUI("status_leaf", view)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(resp)
}
