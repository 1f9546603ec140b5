// Package cli provides the broker's command-line interface: a package-level
// cobra root command with one "run" subcommand reading flags into
// package-level vars.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	statusAddr string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "broker",
	Short: "FNCS-style co-simulation time coordinator",
	Long: `broker coordinates a fixed set of co-simulators over a ZeroMQ ROUTER
socket: it admits them, advances a shared simulated clock in lockstep, and
fans out published values to subscribers.`,
}

// Execute runs the CLI root command.
func Execute() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&statusAddr, "status-addr", "", "address to serve GET /status on (empty disables it)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(runCmd)
}
