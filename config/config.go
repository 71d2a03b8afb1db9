// Package config provides YAML configuration parsing for trackbridge.
//
// This package enables running the trackbridge binary with a configuration
// file, as an alternative to building a Provider with options in code.
//
// Example configuration:
//
//	website_id: ${UMAMI_WEBSITE_ID}
//	host: https://analytics.example.com
//	domains: [example.com, www.example.com]
//	tag: ${RELEASE:-dev}
//	exclude_search: true
//
//	collector:
//	  port: 3000
//	  websites: [3f1c9f0e-1111-4c2a-9a55-7c4f0e9a1b2c]
//	  database: ./events.db
//	  kafka:
//	    brokers: [localhost:9092]
//	    topic: umami-events
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCollectorPort is the collector port used when none is configured.
const DefaultCollectorPort = 3000

// Config is the root configuration structure for trackbridge.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// WebsiteID identifies the site to the collector. When empty the
	// UMAMI_WEBSITE_ID environment fallbacks apply, and the provider is
	// disabled if those are unset too.
	WebsiteID string `yaml:"website_id"`

	// Host is the collector base URL. Defaults to the hosted collector.
	Host string `yaml:"host"`

	// AutoTrack controls automatic page views. Defaults to true.
	AutoTrack *bool `yaml:"auto_track"`

	DoNotTrack bool `yaml:"do_not_track"`

	// Domains restricts tracking to these hostnames.
	Domains []string `yaml:"domains"`

	// Tag is attached to every event.
	Tag string `yaml:"tag"`

	ExcludeSearch bool `yaml:"exclude_search"`
	ExcludeHash   bool `yaml:"exclude_hash"`

	// EdgeRuntime selects the edge build of the tracking script.
	EdgeRuntime bool `yaml:"edge_runtime"`

	// PollInterval is how often pending dispatches check for the tracker.
	// Accepts duration strings like "100ms".
	PollInterval Duration `yaml:"poll_interval"`

	// Timeout bounds each collector request.
	Timeout Duration `yaml:"timeout"`

	Development bool `yaml:"development"`

	// Collector configures the local development collector.
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig configures the local collector started by
// "trackbridge collector".
type CollectorConfig struct {
	// Port is the HTTP port. Defaults to 3000.
	Port int `yaml:"port"`

	// Websites is the allow-list of accepted website IDs. Empty accepts all.
	Websites []string `yaml:"websites"`

	// Buffer is the number of events kept in memory. Defaults to 1000.
	Buffer int `yaml:"buffer"`

	// Database is an optional SQLite file every event is persisted to.
	Database string `yaml:"database"`

	// Kafka optionally forwards every event to a topic.
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig names the brokers and topic events are forwarded to.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether Kafka forwarding is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 || k.Topic != ""
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// expandAll expands every element of ss in place.
func expandAll(field string, ss []string) error {
	for i, s := range ss {
		expanded, err := expandEnvVars(s)
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		ss[i] = expanded
	}
	return nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in website_id, host, tag, domains and
// every collector string. Defaults are applied for the collector port (3000).
// An empty document is valid and yields a configuration that relies on the
// environment fallbacks alone.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Collector.Port == 0 {
		cfg.Collector.Port = DefaultCollectorPort
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	for name, field := range map[string]*string{
		"website_id":            &c.WebsiteID,
		"host":                  &c.Host,
		"tag":                   &c.Tag,
		"collector.database":    &c.Collector.Database,
		"collector.kafka.topic": &c.Collector.Kafka.Topic,
	} {
		expanded, err := expandEnvVars(*field)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = expanded
	}
	if err := expandAll("domains", c.Domains); err != nil {
		return err
	}
	if err := expandAll("collector.websites", c.Collector.Websites); err != nil {
		return err
	}
	if err := expandAll("collector.kafka.brokers", c.Collector.Kafka.Brokers); err != nil {
		return err
	}

	if c.Host != "" {
		parsedURL, err := url.Parse(c.Host)
		if err != nil {
			return fmt.Errorf("host: invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("host: url scheme must be http or https, got %q", parsedURL.Scheme)
		}
	}

	if c.PollInterval.Duration() < 0 {
		return fmt.Errorf("poll_interval cannot be negative, got %s", c.PollInterval.Duration())
	}
	if c.Timeout.Duration() < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout.Duration())
	}

	col := &c.Collector
	if col.Port < 1 || col.Port > 65535 {
		return fmt.Errorf("collector.port must be between 1 and 65535, got %d", col.Port)
	}
	if col.Buffer < 0 {
		return fmt.Errorf("collector.buffer cannot be negative, got %d", col.Buffer)
	}
	if col.Kafka.Enabled() {
		if len(col.Kafka.Brokers) == 0 {
			return errors.New("collector.kafka: at least one broker is required")
		}
		if col.Kafka.Topic == "" {
			return errors.New("collector.kafka: topic is required")
		}
	}

	return nil
}
