// Package search provides the lookup service: raw query image in, catalog identity out.
package search

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/hyperjump/miwake/internal/catalog"
	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/extract"
	"github.com/hyperjump/miwake/internal/fileid"
	"github.com/hyperjump/miwake/internal/indexer"
	"github.com/hyperjump/miwake/internal/matcher"
	"github.com/hyperjump/miwake/internal/models"
	"github.com/hyperjump/miwake/internal/storage"
	"github.com/hyperjump/miwake/pkg/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Reasons reported on a no-match result.
const (
	ReasonDecode       = "image could not be decoded"
	ReasonNoFeatures   = "query has no keypoints"
	ReasonEmptyCatalog = "catalog is empty"
	ReasonNoCandidate  = "no candidate passed matching"
	ReasonDeadline     = "match deadline exceeded"
)

// Engine orchestrates catalog loading, extraction and matching.
type Engine struct {
	store     storage.Storage
	catalog   *catalog.Catalog
	extractor *extract.Extractor
	matcher   *matcher.Matcher
	indexer   *indexer.Indexer
	config    *config.Config
	logger    *zap.Logger
	results   *resultCache

	loadMu sync.Mutex
	loaded bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for load events and per-query summaries.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a lookup engine with the given dependencies.
// idx may be nil, in which case an absent cache is never rebuilt.
func NewEngine(
	store storage.Storage,
	cat *catalog.Catalog,
	extractor *extract.Extractor,
	m *matcher.Matcher,
	idx *indexer.Indexer,
	cfg *config.Config,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:     store,
		catalog:   cat,
		extractor: extractor,
		matcher:   m,
		indexer:   idx,
		config:    cfg,
		results:   newResultCache(cfg.Match.ResultCacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// EnsureLoaded populates the catalog once per engine. A persisted cache is
// read when present; otherwise the configured corpus directory is built.
// A failed attempt is retried on the next call.
func (e *Engine) EnsureLoaded(ctx context.Context) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.loaded {
		return nil
	}
	if e.catalog.Len() > 0 {
		e.loaded = true
		return nil
	}

	start := time.Now()
	if e.store.Exists() {
		n, err := e.catalog.LoadFrom(ctx, e.store, e.config.Match.DuplicatePolicy)
		if err != nil && !errors.Is(err, storage.ErrNotExist) {
			return fmt.Errorf("load catalog: %w", err)
		}
		e.logger.Info("catalog loaded",
			zap.String("path", e.store.Path()),
			zap.Int("entries", n),
			zap.Duration("duration", time.Since(start)))
	}
	if e.catalog.Len() == 0 && e.indexer != nil && e.config.Corpus.Directory != "" {
		e.logger.Info("no reference cache, building corpus", zap.String("dir", e.config.Corpus.Directory))
		if _, err := e.indexer.BuildCorpus(ctx, e.config.Corpus.Directory); err != nil {
			return fmt.Errorf("build corpus: %w", err)
		}
	}
	if e.catalog.Len() == 0 {
		e.logger.Warn("catalog is empty; every lookup will report no match")
	}
	e.loaded = true
	return nil
}

// Identify matches a decoded grayscale image against the catalog. No-match
// outcomes are results, not errors; an error means the catalog could not be
// loaded or ctx ended.
func (e *Engine) Identify(ctx context.Context, img gocv.Mat) (*models.IdentifyResult, error) {
	start := time.Now()
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	features, ok := e.extractor.Extract(img)
	if !ok {
		return e.noMatch(start, ReasonNoFeatures), nil
	}
	entries := e.catalog.Entries()
	if len(entries) == 0 {
		return e.noMatch(start, ReasonEmptyCatalog), nil
	}

	ranked, err := e.matcher.Rank(ctx, features, entries)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			e.logger.Warn("match deadline exceeded",
				zap.Duration("timeout", e.matcher.Timeout()),
				zap.Int("entries", len(entries)))
			return e.noMatch(start, ReasonDeadline), nil
		}
		return nil, err
	}
	if len(ranked) == 0 {
		return e.noMatch(start, ReasonNoCandidate), nil
	}

	best := ranked[0]
	res := &models.IdentifyResult{
		ID:          best.ID,
		Matched:     true,
		EntryID:     best.EntryID,
		GoodMatches: best.GoodMatches,
		MatchRatio:  best.MatchRatio,
		Candidates:  len(ranked),
		Elapsed:     time.Since(start),
	}
	e.logger.Debug("identify matched",
		zap.String("id", res.ID),
		zap.String("entry_id", res.EntryID),
		zap.Int("good_matches", res.GoodMatches),
		zap.Float64("match_ratio", res.MatchRatio),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (e *Engine) noMatch(start time.Time, reason string) *models.IdentifyResult {
	res := &models.IdentifyResult{
		ID:      models.NoMatch,
		Reason:  reason,
		Elapsed: time.Since(start),
	}
	e.logger.Debug("identify found no match", zap.String("reason", reason), zap.Duration("elapsed", res.Elapsed))
	return res
}

// IdentifyImage matches an already decoded Go image.
func (e *Engine) IdentifyImage(ctx context.Context, img image.Image) (*models.IdentifyResult, error) {
	start := time.Now()
	m, err := extract.FromImage(img)
	if err != nil {
		return e.noMatch(start, ReasonDecode), nil
	}
	defer m.Close()
	return e.timed(ctx, start, m)
}

// IdentifyBytes decodes encoded image bytes and matches them. Undecodable
// input yields a no-match result. Results are cached by content while the
// catalog size is unchanged.
func (e *Engine) IdentifyBytes(ctx context.Context, data []byte) (*models.IdentifyResult, error) {
	start := time.Now()
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	key := cacheKey(data, e.catalog.Len())
	if res, ok := e.results.get(key); ok {
		res.Elapsed = time.Since(start)
		e.logger.Debug("identify served from result cache", zap.String("id", res.ID))
		return res, nil
	}
	m, err := e.extractor.Decode(data)
	if err != nil {
		return e.noMatch(start, ReasonDecode), nil
	}
	defer m.Close()
	res, err := e.timed(ctx, start, m)
	if err == nil && res.Reason != ReasonDeadline {
		e.results.set(key, res)
	}
	return res, err
}

// IdentifyFile reads and matches the image at path.
func (e *Engine) IdentifyFile(ctx context.Context, path string) (*models.IdentifyResult, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Debug("identify could not read file", zap.String("path", path), zap.Error(err))
		return e.noMatch(start, ReasonDecode), nil
	}
	res, err := e.IdentifyBytes(ctx, data)
	if res != nil {
		res.Elapsed = time.Since(start)
	}
	return res, err
}

// timed runs Identify and extends its elapsed time to cover decoding.
func (e *Engine) timed(ctx context.Context, start time.Time, m gocv.Mat) (*models.IdentifyResult, error) {
	res, err := e.Identify(ctx, m)
	if res != nil {
		res.Elapsed = time.Since(start)
	}
	return res, err
}

// BuildCorpus catalogs dir through the engine's indexer.
func (e *Engine) BuildCorpus(ctx context.Context, dir string) (*indexer.BuildReport, error) {
	if e.indexer == nil {
		return nil, errors.New("engine has no indexer")
	}
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	return e.indexer.BuildCorpus(ctx, dir)
}

// AddEntry decodes data and catalogs it as id together with its mirror.
func (e *Engine) AddEntry(ctx context.Context, id string, data []byte) (*indexer.Outcome, error) {
	if e.indexer == nil {
		return nil, errors.New("engine has no indexer")
	}
	if err := e.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	m, err := e.extractor.Decode(data)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return e.indexer.AddImage(ctx, id, m)
}

// Stats describes the loaded catalog and its backing store.
type Stats struct {
	Entries        int    `json:"entries"`
	Sources        int    `json:"sources"`
	Backend        string `json:"backend"`
	CachePath      string `json:"cache_path"`
	CorpusDir      string `json:"corpus_dir,omitempty"`
	Index          string `json:"index"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

// Stats returns a snapshot of catalog size and storage details.
func (e *Engine) Stats() *Stats {
	ids := e.catalog.IDs()
	sources := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		sources[fileid.BaseID(id)] = struct{}{}
	}
	st := &Stats{
		Entries:   len(ids),
		Sources:   len(sources),
		Backend:   e.config.Storage.Backend,
		CachePath: e.store.Path(),
		CorpusDir: e.config.Corpus.Directory,
		Index:     e.config.Match.Index,
	}
	if n, err := storage.DiskUsageBytes(e.store.Path()); err == nil {
		st.DiskUsageBytes = n
	} else {
		e.logger.Debug("disk usage unavailable", zap.Error(err))
	}
	return st
}
