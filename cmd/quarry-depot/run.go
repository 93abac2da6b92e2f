package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/cmd/quarry-depot/render"
	"github.com/justapithecus/quarry-depot/depot"
	"github.com/justapithecus/quarry-depot/proxy"
	"github.com/justapithecus/quarry-depot/runarchive"
	"github.com/justapithecus/quarry-depot/scheduler"
	"github.com/justapithecus/quarry-depot/session"
	"github.com/justapithecus/quarry-depot/types"
)

// RunResponse summarizes one `run` invocation: how many queued rows were
// dispatched, how many task outcomes came back, and the run/status the
// commit produced (empty if --no-commit or the run had no events to
// commit).
type RunResponse struct {
	Submitted int    `json:"submitted"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	RunID     string `json:"run_id,omitempty"`
	StatusID  string `json:"status_id,omitempty"`
}

// RunCommand drains the queue through the scheduler until NextBatch comes
// back empty, then commits the resulting workspace (spec §3 lifecycle:
// "run the orchestrator, then commit").
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.IntFlag{Name: "batch-size", Value: 50, Usage: "Rows pulled from the queue per NextBatch call"},
		&cli.BoolFlag{Name: "no-commit", Usage: "Integrate fetched events but leave the workspace open"},
		&cli.StringFlag{Name: "driver", Value: "goroutine", Usage: "Distribution driver: goroutine or sync"},
		&cli.StringFlag{Name: "proxy-pool", Usage: "Proxy pool name (from config) to route fetches through"},
		&cli.DurationFlag{Name: "fetch-timeout", Value: 30 * time.Second, Usage: "Per-request HTTP timeout"},
		&cli.StringFlag{Name: "user-agent", Usage: "User-Agent header sent with every fetch"},
	}
	return &cli.Command{
		Name:      "run",
		Usage:     "Drain the queue through the scheduler, then commit",
		UsageText: "quarry-depot run --config quarry-depot.yaml --batch-size 50",
		Flags:     append(flags, AdapterFlags()...),
		Action:    runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	adapters, err := buildAdapters(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	opts := depotOptions(cfg)
	if len(adapters) > 0 {
		opts = append(opts, depot.WithAdapters(adapters...))
	}
	d, err := openDepot(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	if err := ensureWorkspace(ctx, d); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	q, err := d.Queue()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	selector := proxy.NewSelector()
	for _, pool := range cfg.ProxyPools() {
		p := pool
		if err := selector.RegisterPool(&p); err != nil {
			return cli.Exit(fmt.Sprintf("proxy pool %q: %v", pool.Name, err), 1)
		}
	}

	rf := newRunnerFactory(d, selector, c.String("proxy-pool"), c.Duration("fetch-timeout"), c.String("user-agent"))

	var driver scheduler.DistributionDriver
	switch c.String("driver") {
	case "sync":
		driver = scheduler.NewSyncDriver()
	case "goroutine":
		gd, gctx := scheduler.NewGoroutineDriver(ctx)
		driver = gd
		ctx = gctx
	default:
		return cli.Exit(fmt.Sprintf("run: unknown driver %q (want goroutine or sync)", c.String("driver")), 1)
	}

	orch := scheduler.New(scheduler.ResourceLimitSet(cfg.Limits), driver, rf.run)
	orchDone := make(chan struct{})
	go func() {
		orch.Run(ctx)
		close(orchDone)
	}()

	handlerDescriptors := make(map[string]types.HandlerDescriptor, len(handlerRegistry))
	for name, ctor := range handlerRegistry {
		handlerDescriptors[name] = ctor().Descriptor()
	}

	batchSize := c.Int("batch-size")
	submitted := 0
	for {
		batch, err := q.NextBatch(ctx, batchSize, true)
		if err != nil {
			cancel()
			<-orchDone
			return cli.Exit(fmt.Sprintf("run: next batch: %v", err), 1)
		}
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			desc, ok := handlerDescriptors[row.HandlerName]
			if !ok {
				fmt.Fprintf(c.App.ErrWriter, "run: no registered handler %q, skipping %s\n", row.HandlerName, row.URL)
				continue
			}
			task := scheduler.Task{
				ID:           row.HandlerName + "|" + row.URL,
				HandlerName:  row.HandlerName,
				URL:          row.URL,
				Requirements: session.RequirementsFor(desc),
			}
			if err := orch.Submit(task); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "run: submit %s: %v\n", task.ID, err)
				continue
			}
			submitted++
		}
	}

	outcomes := orch.Join(ctx)
	if gd, ok := driver.(*scheduler.GoroutineDriver); ok {
		_ = gd.Wait()
	}

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(c.App.ErrWriter, "run: task %s failed: %v\n", o.TaskID, o.Err)
		}
	}

	resp := RunResponse{Submitted: submitted, Completed: len(outcomes), Failed: failed}

	if !c.Bool("no-commit") {
		run, status, err := d.Commit(ctx)
		switch {
		case err == nil:
			resp.RunID = run.RunID
			resp.StatusID = status.StatusID
		case errors.Is(err, runarchive.ErrEmptyRun):
			// Nothing was integrated this run; the workspace was still
			// purged, matching depot.Commit's empty-run contract.
		default:
			return cli.Exit(fmt.Sprintf("run: commit: %v", err), 1)
		}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := r.Render(resp); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}
