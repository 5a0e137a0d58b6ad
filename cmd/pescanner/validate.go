package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/cli"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply defaults and environment overrides,
and report every validation error.

Examples:
  # Validate config.yaml
  pescanner validate

  # Validate a specific file and print the effective settings as JSON
  pescanner validate --config prod.yaml --output json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f, err := formatter()
	if err != nil {
		return err
	}

	if path == "" {
		path = "defaults"
	}
	return f.FormatTo(cmd.OutOrStdout(), configSummary(path, cfg))
}

func configSummary(path string, cfg *config.Config) cli.KeyValues {
	names := make([]string, 0, len(cfg.Quota.Tiers))
	for name := range cfg.Quota.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)

	tiers := make([]string, 0, len(names))
	for _, name := range names {
		limit := cfg.Quota.Tiers[name].DailyLimit
		if limit < 0 {
			tiers = append(tiers, name+"=unlimited")
			continue
		}
		tiers = append(tiers, fmt.Sprintf("%s=%d", name, limit))
	}

	return cli.KeyValues{
		{Key: "status", Value: "valid"},
		{Key: "config", Value: path},
		{Key: "listen_address", Value: cfg.Server.ListenAddress},
		{Key: "store", Value: cfg.Store.Backend},
		{Key: "quota_mode", Value: cfg.Quota.Mode},
		{Key: "tiers", Value: strings.Join(tiers, ", ")},
		{Key: "throttle", Value: fmt.Sprintf("capacity=%g refill=%g/s enabled=%t",
			cfg.Throttle.Capacity, cfg.Throttle.RefillRate, cfg.Throttle.IsEnabled())},
		{Key: "identity_resolver", Value: cfg.Identity.Resolver},
		{Key: "admin_enabled", Value: cfg.Admin.Enabled},
	}
}
