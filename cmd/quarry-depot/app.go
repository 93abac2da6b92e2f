package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/adapter"
	"github.com/justapithecus/quarry-depot/config"
	"github.com/justapithecus/quarry-depot/depot"
	"github.com/justapithecus/quarry-depot/log"
	"github.com/justapithecus/quarry-depot/metrics"
	"github.com/justapithecus/quarry-depot/objstore"
	"github.com/justapithecus/quarry-depot/types"
)

// loadConfig reads and validates the config file a subcommand was pointed
// at via --config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	if cfg.DepotRoot == "" || cfg.ProjectName == "" {
		return nil, cli.Exit("config: depot_root and project_name are required", 1)
	}
	return cfg, nil
}

// openDepot opens the depot named by cfg, wiring an S3 object store when
// configured (spec §4.H optional S3-compatible backend) in place of the
// default filesystem store.
func openDepot(ctx context.Context, cfg *config.Config, opts ...depot.Option) (*depot.Depot, error) {
	root := filepath.Join(cfg.DepotRoot, cfg.ProjectName)

	if cfg.ObjectStore != nil && cfg.ObjectStore.Kind == "s3" {
		store, err := objstore.NewS3Store(ctx, objstore.S3Config{
			Bucket:       cfg.ObjectStore.Bucket,
			Prefix:       cfg.ObjectStore.Prefix,
			Region:       cfg.ObjectStore.Region,
			Endpoint:     cfg.ObjectStore.Endpoint,
			UsePathStyle: cfg.ObjectStore.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 object store: %w", err)
		}
		opts = append(opts, depot.WithObjectStore(store))
	}

	d, err := depot.Open(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("open depot %s: %w", root, err)
	}
	return d, nil
}

// buildAdapters constructs the completion-notification adapters named by
// --adapter, mirroring the teacher's --adapter/--adapter-url/etc. flag
// family in run.go.
func buildAdapters(c *cli.Context) ([]adapter.Adapter, error) {
	kind := c.String("adapter")
	if kind == "" {
		return nil, nil
	}

	switch kind {
	case "webhook":
		cfg := webhookConfigFromFlags(c)
		a, err := newWebhookAdapter(cfg)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("adapter: %v", err), 1)
		}
		return []adapter.Adapter{a}, nil
	case "redis":
		cfg := redisConfigFromFlags(c)
		a, err := newRedisAdapter(cfg)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("adapter: %v", err), 1)
		}
		return []adapter.Adapter{a}, nil
	default:
		return nil, cli.Exit(fmt.Sprintf("adapter: unknown kind %q (want webhook or redis)", kind), 1)
	}
}

// ensureWorkspace begins a run against the depot's current leaf status if
// no current-run workspace already exists on disk. register and run both
// call this so either command can be the first to touch a fresh depot.
func ensureWorkspace(ctx context.Context, d *depot.Depot) error {
	_, exists, err := d.InspectWorkspace()
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	leaf, err := d.GetCompleteStatus(ctx)
	if err != nil {
		return err
	}

	var base *string
	if !leaf.IsRoot() {
		id := leaf.StatusID
		base = &id
	}
	return d.BeginRun(ctx, base, types.RunContext{})
}

// runLogger builds the structured logger a subcommand attaches to its
// Depot, tagged with the project name as the handler field since a depot
// has no single handler identity of its own.
func runLogger(cfg *config.Config) *log.Logger {
	return log.NewLogger(log.RunFields{HandlerName: cfg.ProjectName})
}

// depotOptions builds the options every subcommand attaches to its Depot,
// regardless of whether that subcommand also needs metrics or adapters.
func depotOptions(cfg *config.Config) []depot.Option {
	return []depot.Option{depot.WithLogger(runLogger(cfg))}
}

// newMetricsCollector builds a fresh per-invocation metrics.Collector for the
// run subcommand.
func newMetricsCollector(cfg *config.Config, runID string) *metrics.Collector {
	return metrics.NewCollector(cfg.ProjectName, runID)
}
