package main

import (
	"context"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/cmd/quarry-depot/render"
)

// MergeResponse is the rendered result of a merge status operation.
type MergeResponse struct {
	StatusID       string   `json:"status_id"`
	Parent         string   `json:"parent,omitempty"`
	IntegratedRuns []string `json:"integrated_runs"`
}

// MergeCommand folds a set of already-committed runs into a new status
// derived from base, without touching the live workspace (spec §3
// lifecycle step 4, "integrate(status, runs)").
func MergeCommand() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Fold runs into a new status derived from a base status",
		UsageText: "quarry-depot merge --config quarry-depot.yaml --base <status-id> --runs r1,r2",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "base", Required: true, Usage: "Base status id to derive from"},
			&cli.StringFlag{Name: "runs", Required: true, Usage: "Comma-separated run ids to integrate, in order"},
		),
		Action: mergeAction,
	}
}

func mergeAction(c *cli.Context) error {
	runIDs := strings.Split(c.String("runs"), ",")
	for i := range runIDs {
		runIDs[i] = strings.TrimSpace(runIDs[i])
	}

	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	d, err := openDepot(ctx, cfg, depotOptions(cfg)...)
	if err != nil {
		return err
	}

	merged, err := d.MergeStatus(ctx, c.String("base"), runIDs)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resp := MergeResponse{StatusID: merged.StatusID, IntegratedRuns: merged.Context.IntegratedRuns}
	if merged.Context.Parent != nil {
		resp.Parent = *merged.Context.Parent
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(resp)
}
