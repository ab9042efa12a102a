package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/miwake/internal/config"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after image are moved first",
			args:     []string{"query.png", "--output", "json"},
			expected: []string{"--output", "json", "query.png"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"--output", "json", "query.png"},
			expected: []string{"--output", "json", "query.png"},
		},
		{
			name:     "bool flag does not consume the image",
			args:     []string{"--debug", "query.png"},
			expected: []string{"--debug", "query.png"},
		},
		{
			name:     "key=value flag",
			args:     []string{"query.png", "--server=http://x"},
			expected: []string{"--server=http://x", "query.png"},
		},
		{
			name:     "empty args",
			args:     []string{},
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if len(got) == 0 && len(tt.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "storage:\n  backend: sqlite\n  database_path: ./cache.db\nmatch:\n  ratio: 0.75\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, loaded, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != path {
		t.Errorf("loaded path: got %q, want %q", loaded, path)
	}
	if cfg.Storage.Backend != config.BackendSQLite {
		t.Errorf("backend: got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "cache.db") {
		t.Errorf("database path not expanded relative to config: %q", cfg.Storage.DatabasePath)
	}
	if cfg.Match.Ratio != 0.75 || cfg.Match.MinGoodMatches != 5 {
		t.Errorf("match config: %+v", cfg.Match)
	}

	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}
