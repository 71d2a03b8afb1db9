package config

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/trackbridge"
	"github.com/jpalmerr/trackbridge/internal/store"
)

func noEnv(string) (string, bool) { return "", false }

func resolve(t *testing.T, cfg *Config) trackbridge.Config {
	t.Helper()
	opts := append(BuildOptions(cfg), trackbridge.WithEnv(noEnv))
	got, err := trackbridge.ResolveConfig(opts...)
	if err != nil {
		t.Fatalf("ResolveConfig() error = %v", err)
	}
	return got
}

func TestBuildOptions_Minimal(t *testing.T) {
	got := resolve(t, &Config{WebsiteID: "site-1"})

	if got.WebsiteID() != "site-1" {
		t.Errorf("WebsiteID() = %q, want %q", got.WebsiteID(), "site-1")
	}
	if got.Host() != trackbridge.DefaultHost {
		t.Errorf("Host() = %q, want %q", got.Host(), trackbridge.DefaultHost)
	}
	if !got.AutoTrack() {
		t.Error("AutoTrack() = false, want default true")
	}
	if got.PollInterval() != 100*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 100ms", got.PollInterval())
	}
}

func TestBuildOptions_AllFields(t *testing.T) {
	autoTrack := false
	cfg := &Config{
		WebsiteID:     "site-1",
		Host:          "https://analytics.example.com/",
		AutoTrack:     &autoTrack,
		DoNotTrack:    true,
		Domains:       []string{"example.com"},
		Tag:           "v2",
		ExcludeSearch: true,
		ExcludeHash:   true,
		EdgeRuntime:   true,
		PollInterval:  Duration(50 * time.Millisecond),
		Timeout:       Duration(3 * time.Second),
		Development:   true,
	}

	got := resolve(t, cfg)

	if got.Host() != "https://analytics.example.com" {
		t.Errorf("Host() = %q, want trailing slash removed", got.Host())
	}
	if got.AutoTrack() {
		t.Error("AutoTrack() = true, want false")
	}
	if !got.DoNotTrack() || !got.ExcludeSearch() || !got.ExcludeHash() || !got.EdgeRuntime() || !got.Development() {
		t.Error("boolean options were not applied")
	}
	if !slices.Equal(got.Domains(), []string{"example.com"}) {
		t.Errorf("Domains() = %v", got.Domains())
	}
	if got.Tag() != "v2" {
		t.Errorf("Tag() = %q, want v2", got.Tag())
	}
	if got.PollInterval() != 50*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 50ms", got.PollInterval())
	}
	if got.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", got.Timeout())
	}
}

func TestBuildOptions_NoWebsiteID(t *testing.T) {
	opts := append(BuildOptions(&Config{}), trackbridge.WithEnv(noEnv))
	_, err := trackbridge.ResolveConfig(opts...)
	if err != trackbridge.ErrMissingWebsiteID {
		t.Errorf("ResolveConfig() error = %v, want ErrMissingWebsiteID", err)
	}
}

func TestBuildOptions_ScriptTag(t *testing.T) {
	cfg, err := Parse([]byte(`
website_id: site-1
host: https://analytics.example.com
tag: v2
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tag := string(trackbridge.ScriptTag(resolve(t, cfg)))
	for _, want := range []string{
		`src="https://analytics.example.com/script.js"`,
		`data-website-id="site-1"`,
		`data-tag="v2"`,
	} {
		if !strings.Contains(tag, want) {
			t.Errorf("ScriptTag() = %s, missing %s", tag, want)
		}
	}
}

func TestBuildStore(t *testing.T) {
	st := BuildStore(CollectorConfig{Buffer: 2})
	for _, id := range []string{"a", "b", "c"} {
		st.Add(store.Event{ID: id, Kind: store.KindEvent})
	}

	got := st.List("")
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("List() = %v, want the 2 newest events", got)
	}
}

func TestBuildSinks_None(t *testing.T) {
	sinks, err := BuildSinks(CollectorConfig{})
	if err != nil {
		t.Fatalf("BuildSinks() error = %v", err)
	}
	if len(sinks) != 0 {
		t.Errorf("len(sinks) = %d, want 0", len(sinks))
	}
}

func TestBuildSinks_SQLiteAndKafka(t *testing.T) {
	cfg := CollectorConfig{
		Database: filepath.Join(t.TempDir(), "events.db"),
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "events",
		},
	}

	sinks, err := BuildSinks(cfg)
	if err != nil {
		t.Fatalf("BuildSinks() error = %v", err)
	}
	if len(sinks) != 2 {
		t.Fatalf("len(sinks) = %d, want 2", len(sinks))
	}
	if _, ok := sinks[0].(*store.SQLiteSink); !ok {
		t.Errorf("sinks[0] = %T, want *store.SQLiteSink", sinks[0])
	}
	if _, ok := sinks[1].(*store.KafkaSink); !ok {
		t.Errorf("sinks[1] = %T, want *store.KafkaSink", sinks[1])
	}
	if err := CloseSinks(sinks); err != nil {
		t.Errorf("CloseSinks() error = %v", err)
	}
}

func TestBuildSinks_InvalidDatabase(t *testing.T) {
	cfg := CollectorConfig{Database: filepath.Join(t.TempDir(), "missing", "dir", "events.db")}

	if _, err := BuildSinks(cfg); err == nil {
		t.Error("BuildSinks() error = nil, want error for unreachable database path")
	}
}
