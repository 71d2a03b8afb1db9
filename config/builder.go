package config

import (
	"fmt"

	"github.com/jpalmerr/trackbridge"
	"github.com/jpalmerr/trackbridge/internal/store"
)

// BuildOptions converts parsed configuration into Provider options.
//
// Unset fields produce no option, so the environment fallbacks and package
// defaults still apply to them.
func BuildOptions(cfg *Config) []trackbridge.Option {
	var opts []trackbridge.Option

	if cfg.WebsiteID != "" {
		opts = append(opts, trackbridge.WithWebsiteID(cfg.WebsiteID))
	}
	if cfg.Host != "" {
		opts = append(opts, trackbridge.WithHost(cfg.Host))
	}
	if cfg.AutoTrack != nil {
		opts = append(opts, trackbridge.WithAutoTrack(*cfg.AutoTrack))
	}
	if cfg.DoNotTrack {
		opts = append(opts, trackbridge.WithDoNotTrack(true))
	}
	if len(cfg.Domains) > 0 {
		opts = append(opts, trackbridge.WithDomains(cfg.Domains...))
	}
	if cfg.Tag != "" {
		opts = append(opts, trackbridge.WithTag(cfg.Tag))
	}
	if cfg.ExcludeSearch {
		opts = append(opts, trackbridge.WithExcludeSearch(true))
	}
	if cfg.ExcludeHash {
		opts = append(opts, trackbridge.WithExcludeHash(true))
	}
	if cfg.EdgeRuntime {
		opts = append(opts, trackbridge.WithEdgeRuntime(true))
	}
	if cfg.PollInterval != 0 {
		opts = append(opts, trackbridge.WithPollInterval(cfg.PollInterval.Duration()))
	}
	if cfg.Timeout != 0 {
		opts = append(opts, trackbridge.WithTimeout(cfg.Timeout.Duration()))
	}
	if cfg.Development {
		opts = append(opts, trackbridge.WithDevelopment(true))
	}

	return opts
}

// BuildStore returns the in-memory store sized by the collector buffer.
func BuildStore(cfg CollectorConfig) *store.MemoryStore {
	return store.NewMemoryStore(cfg.Buffer)
}

// BuildSinks opens the durable sinks named by the collector configuration.
//
// On error every sink opened so far is closed.
func BuildSinks(cfg CollectorConfig) ([]store.Sink, error) {
	var sinks []store.Sink

	if cfg.Database != "" {
		s, err := store.NewSQLiteSink(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("collector.database: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Kafka.Enabled() {
		s, err := store.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			_ = CloseSinks(sinks)
			return nil, fmt.Errorf("collector.kafka: %w", err)
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}

// CloseSinks closes every sink, returning the first error.
func CloseSinks(sinks []store.Sink) error {
	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
