// PE Scanner serves P/E analysis for stock tickers behind a freemium daily
// quota, with a fleet-wide throttle on calls to the market-data provider.
//
// Usage:
//
//	# Start the server with config.yaml (or defaults when it is absent)
//	pescanner run
//
//	# Start with a custom configuration file
//	pescanner run --config /etc/pescanner/config.yaml
//
//	# Validate a configuration file
//	pescanner validate --config config.yaml
//
//	# Inspect or reset one caller's quota for today
//	pescanner usage get free user:42
//	pescanner usage reset anonymous ip:203.0.113.7
//
//	# Show the upstream throttle state
//	pescanner throttle stats --output json
//
//	# Show version information
//	pescanner version
package main

import (
	"fmt"
	"os"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/cli"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
