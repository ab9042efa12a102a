// Package indexer builds catalog entries from corpus images and persists them.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/miwake/internal/catalog"
	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/extract"
	"github.com/hyperjump/miwake/internal/fileid"
	"github.com/hyperjump/miwake/internal/models"
	"github.com/hyperjump/miwake/internal/storage"
	"github.com/hyperjump/miwake/pkg/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Skip reasons reported in Outcome.Skipped.
const (
	SkipDecode     = "decode failed"
	SkipNoFeatures = "no keypoints"
	SkipCatalogued = "already catalogued"
	SkipInvalidID  = "invalid entry id"
)

// Outcome is the result of processing one corpus source.
type Outcome struct {
	Path    string `json:"path,omitempty"`
	ID      string `json:"id"`
	Entries int    `json:"entries"`
	Skipped string `json:"skipped,omitempty"`
}

// OK reports whether the source produced entries.
func (o Outcome) OK() bool {
	return o.Skipped == "" && o.Entries > 0
}

// BuildReport summarizes a corpus build.
type BuildReport struct {
	BuildID  string        `json:"build_id"`
	Dir      string        `json:"dir"`
	Files    int           `json:"files"`
	Indexed  int           `json:"indexed"`
	Entries  int           `json:"entries"`
	Batches  int           `json:"batches"`
	Skipped  int           `json:"skipped"`
	Outcomes []Outcome     `json:"outcomes"`
	Duration time.Duration `json:"duration_ns"`
}

// Indexer extracts features from corpus images, appends them to storage and
// registers them in the catalog.
type Indexer struct {
	store     storage.Storage
	catalog   *catalog.Catalog
	extractor *extract.Extractor
	config    *config.CorpusConfig
	logger    *zap.Logger

	// commitMu serializes append+register so concurrent callers never
	// persist the same ID twice.
	commitMu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for batch summaries and skipped sources.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	store storage.Storage,
	cat *catalog.Catalog,
	extractor *extract.Extractor,
	cfg *config.CorpusConfig,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		store:     store,
		catalog:   cat,
		extractor: extractor,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// pending is a processed source whose entries are not yet committed.
type pending struct {
	outcome Outcome
	entries []*models.CatalogEntry
}

// BuildCorpus catalogs every regular file directly inside dir, in name order
// and in batches. Each batch is extracted in parallel, appended to storage as
// one write and logged once. Sources that fail to decode or have no keypoints
// are skipped. Cancellation stops between batches; whatever was appended
// before that remains a valid cache.
func (idx *Indexer) BuildCorpus(ctx context.Context, dir string) (*BuildReport, error) {
	start := time.Now()
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	paths, err := idx.listSources(absDir)
	if err != nil {
		return nil, err
	}

	report := &BuildReport{BuildID: uuid.New().String(), Dir: absDir, Files: len(paths)}
	batchSize := idx.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(paths)
	}
	idx.logger.Info("corpus build started",
		zap.String("build_id", report.BuildID),
		zap.String("dir", absDir),
		zap.Int("files", len(paths)),
		zap.Int("batch_size", batchSize),
		zap.Int("workers", idx.config.Workers))

	for lo := 0; lo < len(paths); lo += batchSize {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		hi := min(lo+batchSize, len(paths))
		results, err := utils.ParallelMap(ctx, paths[lo:hi], idx.config.Workers, idx.processFile)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		committed, err := idx.commit(ctx, results)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("append batch %d: %w", report.Batches+1, err)
		}
		report.Batches++
		report.Entries += committed
		reasons := make(map[string]int)
		for _, r := range results {
			report.Outcomes = append(report.Outcomes, r.outcome)
			if r.outcome.OK() {
				report.Indexed++
			} else {
				report.Skipped++
				reasons[r.outcome.Skipped]++
			}
		}
		idx.logger.Info("corpus batch appended",
			zap.String("build_id", report.BuildID),
			zap.Int("batch", report.Batches),
			zap.Int("files", hi-lo),
			zap.Int("entries", committed),
			zap.Any("skipped", reasons),
			zap.Int("progress", hi),
			zap.Int("total", len(paths)))
	}

	report.Duration = time.Since(start)
	idx.logger.Info("corpus build finished",
		zap.String("build_id", report.BuildID),
		zap.Int("indexed", report.Indexed),
		zap.Int("entries", report.Entries),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// listSources returns the regular files directly inside dir whose extension
// is allowed, sorted by name. Subdirectories are not descended into.
func (idx *Indexer) listSources(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var paths []string
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		path := filepath.Join(dir, d.Name())
		if !ExtensionAllowed(filepath.Ext(path), idx.config.Extensions) {
			continue
		}
		// Resolve symlinks so only regular files are catalogued
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// processFile decodes and extracts one source. It only returns an error on
// cancellation; per-image failures become skip outcomes.
func (idx *Indexer) processFile(ctx context.Context, path string) (pending, error) {
	id := fileid.EntryID(path)
	out := pending{outcome: Outcome{Path: path, ID: id}}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if err := ValidateID(id); err != nil {
		idx.logger.Warn("indexer skipping file with unusable name", zap.String("path", path), zap.Error(err))
		out.outcome.Skipped = SkipInvalidID
		return out, nil
	}
	if idx.catalog.Has(id) {
		out.outcome.Skipped = SkipCatalogued
		return out, nil
	}
	img, err := idx.extractor.Load(path)
	if err != nil {
		idx.logger.Debug("indexer skipping undecodable file", zap.String("path", path), zap.Error(err))
		out.outcome.Skipped = SkipDecode
		return out, nil
	}
	defer img.Close()
	out.entries, out.outcome.Skipped = idx.entriesFor(id, img)
	if out.outcome.Skipped != "" {
		idx.logger.Debug("indexer skipping file", zap.String("path", path), zap.String("reason", out.outcome.Skipped))
	}
	out.outcome.Entries = len(out.entries)
	return out, nil
}

// entriesFor extracts the original and, when enabled, the mirrored variant
// of img. It returns a skip reason when the original yields no keypoints.
func (idx *Indexer) entriesFor(id string, img gocv.Mat) ([]*models.CatalogEntry, string) {
	original, ok := idx.entry(id, img)
	if !ok {
		return nil, SkipNoFeatures
	}
	entries := []*models.CatalogEntry{original}
	if !idx.config.MirrorOrDefault() {
		return entries, ""
	}
	mirrored := extract.Mirror(img)
	defer mirrored.Close()
	if e, ok := idx.entry(fileid.MirroredID(id), mirrored); ok {
		entries = append(entries, e)
	}
	return entries, ""
}

func (idx *Indexer) entry(id string, img gocv.Mat) (*models.CatalogEntry, bool) {
	features, ok := idx.extractor.Extract(img)
	if !ok {
		return nil, false
	}
	binary, err := extract.Normalize(img)
	if err != nil {
		idx.logger.Warn("indexer could not normalize image", zap.String("id", id), zap.Error(err))
	}
	return &models.CatalogEntry{
		ID:          id,
		Keypoints:   features.Keypoints,
		Descriptors: features.Descriptors,
		BinaryImage: binary,
	}, true
}

// commit appends the entries of results as a single write and registers them.
// Entries whose ID was catalogued in the meantime are dropped.
func (idx *Indexer) commit(ctx context.Context, results []pending) (int, error) {
	idx.commitMu.Lock()
	defer idx.commitMu.Unlock()

	var batch []*models.CatalogEntry
	seen := make(map[string]bool)
	for i := range results {
		kept := 0
		for _, e := range results[i].entries {
			if idx.catalog.Has(e.ID) || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			batch = append(batch, e)
			kept++
		}
		if len(results[i].entries) > 0 && kept == 0 {
			results[i].outcome.Skipped = SkipCatalogued
		}
		results[i].outcome.Entries = kept
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := idx.store.Append(ctx, batch); err != nil {
		return 0, err
	}
	for _, e := range batch {
		idx.catalog.Put(e)
	}
	return len(batch), nil
}

// IndexFile catalogs a single corpus file (original and mirror). Already
// catalogued IDs and unusable images are reported in the outcome, not as errors.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*Outcome, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !ExtensionAllowed(filepath.Ext(absPath), idx.config.Extensions) {
		return nil, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	r, err := idx.processFile(ctx, absPath)
	if err != nil {
		return nil, err
	}
	results := []pending{r}
	if _, err := idx.commit(ctx, results); err != nil {
		return nil, fmt.Errorf("append %s: %w", absPath, err)
	}
	idx.logger.Debug("indexer file processed",
		zap.String("path", absPath),
		zap.Int("entries", results[0].outcome.Entries),
		zap.String("skipped", results[0].outcome.Skipped))
	return &results[0].outcome, nil
}

// AddImage catalogs an already decoded image under id. It fails with
// catalog.ErrDuplicateEntry when id is taken.
func (idx *Indexer) AddImage(ctx context.Context, id string, img gocv.Mat) (*Outcome, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if idx.catalog.Has(id) {
		return nil, fmt.Errorf("%w: %s", catalog.ErrDuplicateEntry, id)
	}
	r := pending{outcome: Outcome{ID: id}}
	r.entries, r.outcome.Skipped = idx.entriesFor(id, img)
	results := []pending{r}
	if _, err := idx.commit(ctx, results); err != nil {
		return nil, fmt.Errorf("append %s: %w", id, err)
	}
	return &results[0].outcome, nil
}

// ValidateID rejects identifiers that cannot round-trip through the cache file
// or that collide with the mirror naming scheme.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("entry id is required")
	case strings.ContainsAny(id, "\r\n"):
		return errors.New("entry id must be a single line")
	case fileid.IsMirrored(id):
		return fmt.Errorf("entry id must not end in %q", fileid.MirrorSuffix)
	}
	return nil
}

// ExtensionAllowed reports whether ext is in allowed (case-insensitive,
// leading dot optional). An empty allowed list accepts everything.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
