// Package config provides configuration loading and structs for the miwake engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	Extract ExtractConfig `yaml:"extract"`
	Match   MatchConfig   `yaml:"match"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the reference cache backend and its location.
type StorageConfig struct {
	Backend      string `yaml:"backend"` // "csv" or "sqlite"
	CachePath    string `yaml:"cache_path"`
	DatabasePath string `yaml:"database_path"`
}

// CorpusConfig holds corpus build settings.
type CorpusConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	BatchSize  int      `yaml:"batch_size"`
	Workers    int      `yaml:"workers"`
	Mirror     *bool    `yaml:"mirror"`
	Watch      bool     `yaml:"watch"`
}

// MirrorOrDefault returns whether mirrored variants are catalogued; defaults to true when unset.
func (c *CorpusConfig) MirrorOrDefault() bool {
	if c.Mirror != nil {
		return *c.Mirror
	}
	return true
}

// ExtractConfig holds feature detector settings.
type ExtractConfig struct {
	MaxFeatures   int     `yaml:"max_features"`
	BlurKernel    int     `yaml:"blur_kernel"`
	ScaleFactor   float64 `yaml:"scale_factor"`
	Levels        int     `yaml:"levels"`
	EdgeThreshold int     `yaml:"edge_threshold"`
	PatchSize     int     `yaml:"patch_size"`
	FastThreshold int     `yaml:"fast_threshold"`
}

// MatchConfig holds matcher settings.
type MatchConfig struct {
	Ratio            float64       `yaml:"ratio"`
	MinGoodMatches   int           `yaml:"min_good_matches"`
	RansacThreshold  float64       `yaml:"ransac_threshold"`
	RansacMaxIters   int           `yaml:"ransac_max_iters"`
	RansacConfidence float64       `yaml:"ransac_confidence"`
	QuadSize         float64       `yaml:"quad_size"`
	MinArea          float64       `yaml:"min_area"`
	Workers          int           `yaml:"workers"`
	Timeout          time.Duration `yaml:"timeout"`
	Index            string        `yaml:"index"` // "lsh" or "exhaustive"
	LSHTables        int           `yaml:"lsh_tables"`
	LSHKeyBits       int           `yaml:"lsh_key_bits"`
	LSHSeed          int64         `yaml:"lsh_seed"`
	DuplicatePolicy  string        `yaml:"duplicate_policy"` // "error" or "last-wins"
	ResultCacheSize  int           `yaml:"result_cache_size"` // negative disables
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.CachePath = expandPath(cfg.Storage.CachePath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Corpus.Directory != "" {
		cfg.Corpus.Directory = expandPath(cfg.Corpus.Directory, configDir)
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendCSV, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend: %s (supported: csv, sqlite)", c.Storage.Backend)
	}
	switch c.Match.DuplicatePolicy {
	case DuplicateError, DuplicateLastWins:
	default:
		return fmt.Errorf("unknown duplicate policy: %s (supported: error, last-wins)", c.Match.DuplicatePolicy)
	}
	switch c.Match.Index {
	case IndexLSH, IndexExhaustive:
	default:
		return fmt.Errorf("unknown match index: %s (supported: lsh, exhaustive)", c.Match.Index)
	}
	if c.Match.Ratio <= 0 || c.Match.Ratio > 1 {
		return fmt.Errorf("match ratio must be in (0, 1], got %v", c.Match.Ratio)
	}
	if c.Match.MinGoodMatches < 4 {
		return fmt.Errorf("min_good_matches must be at least 4, got %d", c.Match.MinGoodMatches)
	}
	if c.Extract.BlurKernel%2 == 0 {
		return fmt.Errorf("blur_kernel must be odd, got %d", c.Extract.BlurKernel)
	}
	return nil
}

// ActivePath returns the file the configured backend persists to.
func (s *StorageConfig) ActivePath() string {
	if s.Backend == BackendSQLite {
		return s.DatabasePath
	}
	return s.CachePath
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
