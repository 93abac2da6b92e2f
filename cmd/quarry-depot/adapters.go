package main

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/quarry-depot/adapter/redis"
	"github.com/justapithecus/quarry-depot/adapter/webhook"
)

// AdapterFlags mirror the teacher's --adapter/--adapter-url/etc. family,
// generalized from run-completion notification to status-commit
// notification (spec §4.D extension).
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion-notification adapter type (webhook, redis)",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint URL (required when --adapter is set)",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Custom HTTP header as key=value (repeatable, webhook only)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Adapter notification timeout",
			Value: webhook.DefaultTimeout,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
			Value: webhook.DefaultRetries,
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Pub/sub channel name for the redis adapter",
		},
	}
}

func webhookConfigFromFlags(c *cli.Context) webhook.Config {
	headers := make(map[string]string)
	for _, h := range c.StringSlice("adapter-header") {
		parts := strings.SplitN(h, "=", 2)
		if len(parts) == 2 {
			headers[parts[0]] = parts[1]
		}
	}
	return webhook.Config{
		URL:     c.String("adapter-url"),
		Headers: headers,
		Timeout: c.Duration("adapter-timeout"),
		Retries: c.Int("adapter-retries"),
	}
}

func newWebhookAdapter(cfg webhook.Config) (*webhook.Adapter, error) {
	return webhook.New(cfg)
}

func redisConfigFromFlags(c *cli.Context) redis.Config {
	return redis.Config{
		URL:     c.String("adapter-url"),
		Channel: c.String("adapter-channel"),
		Timeout: c.Duration("adapter-timeout"),
		Retries: c.Int("adapter-retries"),
	}
}

func newRedisAdapter(cfg redis.Config) (*redis.Adapter, error) {
	return redis.New(cfg)
}
