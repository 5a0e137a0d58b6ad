package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/cli"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/server"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the PE Scanner server",
	Long: `Start the PE Scanner HTTP server with the specified configuration.

The server enforces the per-tier daily quota on /api routes and throttles
calls to the market-data provider through the shared store. Editing the
config file reloads the tier table without a restart.

Examples:
  # Start with default config
  pescanner run

  # Start with custom config
  pescanner run --config /etc/pescanner/config.yaml

  # Override listen address
  pescanner run --listen 0.0.0.0:8080

  # Validate config without starting server
  pescanner run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	applyRunFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger, err := logging.New(logging.ConfigFrom(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	source := path
	if source == "" {
		source = "defaults"
	}
	logger.Info("starting pescanner",
		"version", Version,
		"config", source,
		"store", cfg.Store.Backend,
		"quota_mode", cfg.Quota.Mode,
	)

	srv, err := server.New(cfg, server.Options{
		Version:    Version,
		Commit:     GitCommit,
		BuildTime:  BuildDate,
		ConfigPath: path,
		Overrides:  applyRunFlags,
		Logger:     logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("cleanup failed", "error", err)
		}
	}()

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// applyRunFlags copies the run flags over cfg. It runs on startup and on
// every hot reload.
func applyRunFlags(cfg *config.Config) {
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
}
