package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/cli"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pescanner",
	Short: "PE Scanner - P/E analysis service with freemium quotas",
	Long: `PE Scanner serves P/E analysis for stock tickers.

Every analysis request is counted against a daily quota that depends on the
caller's tier (anonymous, free, pro, premium). Calls to the market-data
provider pass through a token bucket shared by every instance, so the fleet
as a whole stays under the provider's rate limit.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json")
}

// loadConfig loads the configuration named by --config. When the flag was
// left at its default and the file does not exist, defaults and environment
// overrides are used instead.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := cfgFile
	if f := cmd.Flag("config"); f == nil || !f.Changed {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, "", cli.NewConfigError("", err.Error())
	}
	return cfg, path, nil
}

func formatter() (cli.Formatter, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, cli.NewConfigError("output", err.Error())
	}
	return cli.NewFormatter(format), nil
}

// render writes value as JSON, or text as aligned rows, per --output.
func render(cmd *cobra.Command, value any, text cli.KeyValues) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), value)
	}
	return cli.NewFormatter(cli.FormatText).FormatTo(cmd.OutOrStdout(), text)
}
