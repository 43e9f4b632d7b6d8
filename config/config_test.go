package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{
		"search": {"provider": "brave", "brave_api_key": "test"},
		"research": {"default_breadth": 6}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := LoadConfig(path)

	if cfg.Research.DefaultBreadth != 6 {
		t.Fatalf("default_breadth = %d, want 6", cfg.Research.DefaultBreadth)
	}
	if cfg.Research.DefaultDepth != 2 {
		t.Fatalf("default_depth = %d, want default 2", cfg.Research.DefaultDepth)
	}
	if cfg.Research.Concurrency != 2 {
		t.Fatalf("concurrency = %d, want default 2", cfg.Research.Concurrency)
	}
	if cfg.Search.Provider != "brave" {
		t.Fatalf("search provider = %q", cfg.Search.Provider)
	}
	if cfg.Research.Language != "en-US" {
		t.Fatalf("language = %q, want default en-US", cfg.Research.Language)
	}
}

func TestResearchConfigValidate(t *testing.T) {
	t.Parallel()
	valid := ResearchConfig{Concurrency: 2, DefaultBreadth: 4, DefaultDepth: 2}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := []ResearchConfig{
		{Concurrency: 0, DefaultBreadth: 4, DefaultDepth: 2},
		{Concurrency: 2, DefaultBreadth: 0, DefaultDepth: 2},
		{Concurrency: 2, DefaultBreadth: 4, DefaultDepth: 2, ConcurrencyCeiling: -1},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("bad config %d accepted", i)
		}
	}
}

func TestSearchConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  SearchConfig
		ok   bool
	}{
		{"serper with key", SearchConfig{Provider: "serper", SerperAPIKey: "k"}, true},
		{"serper without key", SearchConfig{Provider: "serper"}, false},
		{"brave with key", SearchConfig{Provider: "brave", BraveAPIKey: "k"}, true},
		{"brave without key", SearchConfig{Provider: "brave"}, false},
		{"unknown provider", SearchConfig{Provider: "altavista"}, false},
		{"unset provider", SearchConfig{}, false},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err == nil) != tt.ok {
			t.Fatalf("%s: err = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}
