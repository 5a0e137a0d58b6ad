package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/cli"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/quota"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/storage"
)

const commandTimeout = 10 * time.Second

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and reset daily quota counters",
	Long: `Inspect and reset today's quota counter for one caller, directly in the
configured store.

Identities are the values the server derives from requests: "user:<id>"
for authenticated callers and "ip:<address>" for anonymous ones.

Examples:
  pescanner usage get free user:42
  pescanner usage reset anonymous ip:203.0.113.7`,
}

var usageGetCmd = &cobra.Command{
	Use:   "get <tier> <identity>",
	Short: "Show today's usage for a caller",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, engine *quota.Engine) error {
			usage, err := engine.Usage(ctx, limits.ParseTier(args[0]), args[1])
			if err != nil {
				return cli.NewCommandError("usage get", err)
			}

			return render(cmd, usage, usageRows(usage))
		})
	},
}

var usageResetCmd = &cobra.Command{
	Use:   "reset <tier> <identity>",
	Short: "Reset today's usage for a caller",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, engine *quota.Engine) error {
			tier := limits.ParseTier(args[0])
			if err := engine.Reset(ctx, tier, args[1]); err != nil {
				return cli.NewCommandError("usage reset", err)
			}

			rows := cli.KeyValues{
				{Key: "status", Value: "reset"},
				{Key: "tier", Value: tier},
				{Key: "identity", Value: args[1]},
			}
			return render(cmd, rows, rows)
		})
	},
}

func init() {
	usageCmd.AddCommand(usageGetCmd, usageResetCmd)
	rootCmd.AddCommand(usageCmd)
}

func usageRows(u limits.Usage) cli.KeyValues {
	rows := cli.KeyValues{
		{Key: "tier", Value: u.Tier},
		{Key: "identity", Value: u.Identity},
	}
	if u.Limit == limits.Unlimited {
		return append(rows, cli.KeyValue{Key: "limit", Value: "unlimited"})
	}

	reset := "-"
	if u.ResetAt != nil {
		reset = u.ResetAt.Format(time.RFC3339)
	}
	return append(rows,
		cli.KeyValue{Key: "used", Value: u.Used},
		cli.KeyValue{Key: "limit", Value: u.Limit},
		cli.KeyValue{Key: "remaining", Value: u.Remaining},
		cli.KeyValue{Key: "reset_at", Value: reset},
	)
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store storage.Backend) error) error {
	if _, err := formatter(); err != nil {
		return err
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	return fn(ctx, cfg, store)
}

func withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *quota.Engine) error) error {
	return withStore(cmd, func(ctx context.Context, cfg *config.Config, store storage.Backend) error {
		return fn(ctx, quota.NewEngineFromConfig(store, cfg.Quota, cfg.Store))
	})
}
