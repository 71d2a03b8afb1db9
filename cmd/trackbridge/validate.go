package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackbridge"
	"github.com/jpalmerr/trackbridge/config"
)

// validateCmd validates a config file without using it.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a trackbridge configuration file.

This command parses the YAML, expands environment variables, validates all
fields and resolves the result against the UMAMI_* environment fallbacks.
It's useful for CI/CD pipelines or pre-deployment checks.

A configuration without a website ID is valid but reported as disabled,
since providers built from it drop every event.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  trackbridge validate -c config.yaml
  trackbridge validate --config /etc/trackbridge/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	addConfigFlag(validateCmd, true)
}

func runValidate(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg, err := trackbridge.ResolveConfig(config.BuildOptions(fileCfg)...)
	disabled := errors.Is(err, trackbridge.ErrMissingWebsiteID)
	if err != nil && !disabled {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	if disabled {
		fmt.Fprintf(out, "  Website ID:    (none, tracking disabled)\n")
	} else {
		fmt.Fprintf(out, "  Website ID:    %s\n", cfg.WebsiteID())
	}
	fmt.Fprintf(out, "  Script:        %s\n", trackbridge.ScriptSrc(cfg))
	fmt.Fprintf(out, "  Domains:       %d\n", len(cfg.Domains()))
	fmt.Fprintf(out, "  Collector:     port %d, %d sinks configured\n",
		fileCfg.Collector.Port, sinkCount(fileCfg.Collector))

	return nil
}

func sinkCount(c config.CollectorConfig) int {
	n := 0
	if c.Database != "" {
		n++
	}
	if c.Kafka.Enabled() {
		n++
	}
	return n
}
