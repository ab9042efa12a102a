package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  cache_path: "cache.csv"
match:
  timeout: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.CachePath == "" {
		t.Error("cache_path should be set")
	}
	if cfg.Match.Timeout != 250*time.Millisecond {
		t.Errorf("timeout = %v, want 250ms", cfg.Match.Timeout)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  cache_path: "./data/reference_cache.csv"
corpus:
  directory: "./icons"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "data", "reference_cache.csv")
	if cfg.Storage.CachePath != want {
		t.Errorf("cache_path = %s, want %s", cfg.Storage.CachePath, want)
	}
	if cfg.Corpus.Directory != filepath.Join(dir, "icons") {
		t.Errorf("corpus directory = %s", cfg.Corpus.Directory)
	}
}

func TestLoad_rejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLoad_rejectsUnknownIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("match:\n  index: kdtree\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown match index")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Storage.Backend != BackendCSV {
		t.Errorf("default backend: got %s", cfg.Storage.Backend)
	}
	if cfg.Extract.MaxFeatures != 170 {
		t.Errorf("default max_features: got %d", cfg.Extract.MaxFeatures)
	}
	if cfg.Match.Ratio != 0.7 || cfg.Match.MinGoodMatches != 5 {
		t.Errorf("default ratio/min good: %v/%d", cfg.Match.Ratio, cfg.Match.MinGoodMatches)
	}
	if cfg.Match.RansacThreshold != 5.0 || cfg.Match.QuadSize != 50 || cfg.Match.MinArea != 100 {
		t.Errorf("default geometry: %+v", cfg.Match)
	}
	if cfg.Corpus.Workers < 1 || cfg.Corpus.Workers > 4 {
		t.Errorf("default corpus workers: got %d", cfg.Corpus.Workers)
	}
	if cfg.Match.Workers != runtime.NumCPU() {
		t.Errorf("default match workers: got %d", cfg.Match.Workers)
	}
	if cfg.Match.DuplicatePolicy != DuplicateError {
		t.Errorf("default duplicate policy: got %s", cfg.Match.DuplicatePolicy)
	}
	if cfg.Match.ResultCacheSize != 256 {
		t.Errorf("default result cache size: got %d", cfg.Match.ResultCacheSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ratio above one", func(c *Config) { c.Match.Ratio = 1.5 }},
		{"too few matches", func(c *Config) { c.Match.MinGoodMatches = 3 }},
		{"even blur kernel", func(c *Config) { c.Extract.BlurKernel = 4 }},
		{"unknown policy", func(c *Config) { c.Match.DuplicatePolicy = "first-wins" }},
		{"unknown index", func(c *Config) { c.Match.Index = "lhs" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCorpusConfig_MirrorOrDefault(t *testing.T) {
	c := &CorpusConfig{}
	if !c.MirrorOrDefault() {
		t.Error("mirror should default to true")
	}
	f := false
	c.Mirror = &f
	if c.MirrorOrDefault() {
		t.Error("mirror should honour explicit false")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{Server: ServerConfig{Host: "localhost", Port: 9090}}
	ApplyDefaults(cfg)
	cfg.Storage.CachePath = "/tmp/cache.csv"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Storage.CachePath != "/tmp/cache.csv" {
		t.Errorf("loaded cache path: got %s", loaded.Storage.CachePath)
	}
}
