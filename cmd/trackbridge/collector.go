package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackbridge/config"
	"github.com/jpalmerr/trackbridge/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
)

// collectorCmd starts the development collector.
var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run a local collector for development",
	Long: `Run a local collector that speaks the Umami tracking API.

The collector will:
  - Serve a stub /script.js so pages and providers become ready
  - Accept /api/send, /api/collect/vitals and /api/collect/forms
  - List received events at /api/events and stream them at /api/sse
  - Optionally persist events to SQLite and publish them to Kafka

Point a provider at it with host: http://localhost:3000.

The collector runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  trackbridge collector
  trackbridge collector -c config.yaml --port 4000 --database events.db`,
	RunE: runCollector,
}

func init() {
	rootCmd.AddCommand(collectorCmd)

	addConfigFlag(collectorCmd, false)
	collectorCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides collector.port)")
	collectorCmd.Flags().String("database", "", "SQLite file to persist events to (overrides collector.database)")
}

func runCollector(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	col := cfg.Collector
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		col.Port = port
	}
	if db, _ := cmd.Flags().GetString("database"); db != "" {
		col.Database = db
	}

	sinks, err := config.BuildSinks(col)
	if err != nil {
		return fmt.Errorf("failed to open sinks: %w", err)
	}
	defer func() {
		if err := config.CloseSinks(sinks); err != nil {
			logger.Warn("failed to close sinks", "error", err.Error())
		}
	}()

	logger.Info("starting collector",
		"port", col.Port,
		"websites", len(col.Websites),
		"database", col.Database,
		"kafka_topic", col.Kafka.Topic,
	)

	srv := server.NewServer(config.BuildStore(col), col.Port, col.Websites, sinks, logger)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	<-ctx.Done()

	// Start shuts down in the background once ctx is done
	select {
	case <-srv.Stopped():
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}
