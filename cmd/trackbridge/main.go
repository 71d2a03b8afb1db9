// Package main is the entry point for the trackbridge CLI.
//
// trackbridge is mostly used as a library. The CLI covers the tasks that do
// not need a Go program: rendering or injecting the tracking script, sending
// a one-off event and running a local collector for development.
//
// Usage:
//
//	trackbridge snippet -c config.yaml                # Print the script tag
//	trackbridge inject -c config.yaml -i index.html   # Add the tag to a page
//	trackbridge send -c config.yaml --event signup    # Send one event
//	trackbridge collector -c config.yaml              # Run a dev collector
//	trackbridge validate -c config.yaml               # Validate configuration
//	trackbridge version                               # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackbridge/config"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "trackbridge",
	Short: "Umami analytics tooling",
	Long: `trackbridge connects Go web applications to an Umami analytics collector.

The CLI renders the tracking script, injects it into static pages, sends
one-off events and runs a local collector for development.

Configuration comes from a YAML file, environment variables
(UMAMI_WEBSITE_ID, UMAMI_HOST), or both. Values in the file win.

Quick start:
  1. export UMAMI_WEBSITE_ID=<your website id>
  2. Run: trackbridge snippet
  3. Paste the output into your page's <head>

Example config:
  website_id: ${UMAMI_WEBSITE_ID}
  host: https://analytics.example.com
  domains: [example.com]`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this trackbridge binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "trackbridge %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// loadConfig reads the file named by the --config flag. Without the flag an
// empty configuration is returned, leaving everything to the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Parse(nil)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func addConfigFlag(cmd *cobra.Command, required bool) {
	usage := "path to config file"
	if required {
		usage += " (required)"
	}
	cmd.Flags().StringP("config", "c", "", usage)
	if required {
		_ = cmd.MarkFlagRequired("config")
	}
}
