package config

import (
	"runtime"
	"time"
)

// Storage backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Duplicate identifier policies applied when loading the reference cache.
const (
	DuplicateError    = "error"
	DuplicateLastWins = "last-wins"
)

// Descriptor index types.
const (
	IndexLSH        = "lsh"
	IndexExhaustive = "exhaustive"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendCSV
	}
	if cfg.Storage.CachePath == "" {
		cfg.Storage.CachePath = "/usr/local/var/miwake/data/reference_cache.csv"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/miwake/data/reference_cache.db"
	}
	if cfg.Corpus.Extensions == nil {
		cfg.Corpus.Extensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".webp", ".tif", ".tiff"}
	}
	if cfg.Corpus.BatchSize == 0 {
		cfg.Corpus.BatchSize = 50
	}
	if cfg.Corpus.Workers == 0 {
		// Extraction is CPU-bound; a small pool avoids oversubscription.
		cfg.Corpus.Workers = min(4, runtime.NumCPU())
	}
	if cfg.Extract.MaxFeatures == 0 {
		cfg.Extract.MaxFeatures = 170
	}
	if cfg.Extract.BlurKernel == 0 {
		cfg.Extract.BlurKernel = 3
	}
	if cfg.Extract.ScaleFactor == 0 {
		cfg.Extract.ScaleFactor = 1.2
	}
	if cfg.Extract.Levels == 0 {
		cfg.Extract.Levels = 8
	}
	if cfg.Extract.EdgeThreshold == 0 {
		cfg.Extract.EdgeThreshold = 31
	}
	if cfg.Extract.PatchSize == 0 {
		cfg.Extract.PatchSize = 31
	}
	if cfg.Extract.FastThreshold == 0 {
		cfg.Extract.FastThreshold = 20
	}
	if cfg.Match.Ratio == 0 {
		cfg.Match.Ratio = 0.7
	}
	if cfg.Match.MinGoodMatches == 0 {
		cfg.Match.MinGoodMatches = 5
	}
	if cfg.Match.RansacThreshold == 0 {
		cfg.Match.RansacThreshold = 5.0
	}
	if cfg.Match.RansacMaxIters == 0 {
		cfg.Match.RansacMaxIters = 2000
	}
	if cfg.Match.RansacConfidence == 0 {
		cfg.Match.RansacConfidence = 0.995
	}
	if cfg.Match.QuadSize == 0 {
		cfg.Match.QuadSize = 50
	}
	if cfg.Match.MinArea == 0 {
		cfg.Match.MinArea = 100
	}
	if cfg.Match.Workers == 0 {
		cfg.Match.Workers = runtime.NumCPU()
	}
	if cfg.Match.Timeout == 0 {
		cfg.Match.Timeout = 5 * time.Second
	}
	if cfg.Match.Index == "" {
		cfg.Match.Index = IndexLSH
	}
	if cfg.Match.LSHTables == 0 {
		cfg.Match.LSHTables = 8
	}
	if cfg.Match.LSHKeyBits == 0 {
		cfg.Match.LSHKeyBits = 14
	}
	if cfg.Match.LSHSeed == 0 {
		cfg.Match.LSHSeed = 1
	}
	if cfg.Match.ResultCacheSize == 0 {
		cfg.Match.ResultCacheSize = 256
	}
	if cfg.Match.DuplicatePolicy == "" {
		cfg.Match.DuplicatePolicy = DuplicateError
	}
}
