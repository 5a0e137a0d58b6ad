package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/cli"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/storage"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits/throttle"
)

var throttleCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Inspect the upstream throttle",
}

var throttleStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the shared token bucket state",
	Long: `Show the upstream token bucket as seen in the configured store: tokens
available now, capacity, refill rate and permits granted this hour.

Reading the bucket does not consume a token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, cfg *config.Config, store storage.Backend) error {
			stats := throttle.NewFromConfig(store, cfg.Throttle, cfg.Store).Stats(ctx)
			return render(cmd, stats, statsRows(stats))
		})
	},
}

func init() {
	throttleCmd.AddCommand(throttleStatsCmd)
	rootCmd.AddCommand(throttleCmd)
}

func statsRows(s throttle.Stats) cli.KeyValues {
	hour := any(s.RequestsThisHour)
	if s.RequestsThisHour < 0 {
		hour = "-"
	}
	return cli.KeyValues{
		{Key: "name", Value: s.Name},
		{Key: "enabled", Value: s.Enabled},
		{Key: "mode", Value: s.Mode},
		{Key: "available_tokens", Value: fmt.Sprintf("%.2f", s.AvailableTokens)},
		{Key: "capacity", Value: s.Capacity},
		{Key: "refill_rate", Value: fmt.Sprintf("%g/s", s.RefillRate)},
		{Key: "requests_this_hour", Value: hour},
	}
}
