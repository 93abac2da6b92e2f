package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/types"
)

// RegisterCommand adds source URLs to the current-run workspace's queue
// under a named handler, beginning a workspace first if none is open yet
// (spec §3 lifecycle step 2, "register url(s)").
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register source URLs for a handler",
		ArgsUsage: "<handler> <url> [url...]",
		UsageText: "quarry-depot register --config quarry-depot.yaml links https://example.com/start",
		Flags:     []cli.Flag{ConfigFlag},
		Action:    registerAction,
	}
}

func registerAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("register requires a handler name and at least one URL", 1)
	}
	handlerName := c.Args().Get(0)
	urls := c.Args().Slice()[1:]
	if _, ok := handlerRegistry[handlerName]; !ok {
		return cli.Exit(fmt.Sprintf("register: unknown handler %q", handlerName), 1)
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
	if err := ensureWorkspace(ctx, d); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	events := make([]types.Event, 0, len(urls))
	for _, u := range urls {
		ev := types.RegistrationEvent{HandlerName: handlerName, URL: u}
		events = append(events, types.Event{Kind: types.KindRegistration, Registration: &ev})
	}
	if err := d.Integrate(ctx, events); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Fprintf(c.App.Writer, "registered %d url(s) for handler %q\n", len(urls), handlerName)
	return nil
}
