package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/miwake/internal/catalog"
	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/extract"
	"github.com/hyperjump/miwake/internal/indexer"
	"github.com/hyperjump/miwake/internal/matcher"
	"github.com/hyperjump/miwake/internal/models"
	"github.com/hyperjump/miwake/internal/storage"
	"github.com/hyperjump/miwake/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	store, err := storage.Open(&cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cat := catalog.New()
	ex := extract.NewExtractor(extract.OptionsFromConfig(&cfg.Extract))
	idx := indexer.NewIndexer(store, cat, ex, &cfg.Corpus)
	m := matcher.New(matcher.OptionsFromConfig(&cfg.Match))
	return NewEngine(store, cat, ex, m, idx, cfg)
}

func writeCorpus(t *testing.T, cfg *config.Config) {
	t.Helper()
	testsupport.WritePNG(t, cfg.Corpus.Directory, "alpha.png", testsupport.PatternImage(200, 200, 1))
	testsupport.WritePNG(t, cfg.Corpus.Directory, "beta.png", testsupport.PatternImage(200, 200, 2))
}

func TestEngine_alphaBetaScenario(t *testing.T) {
	for _, backend := range []string{config.BackendCSV, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := testsupport.NewConfig(t)
			cfg.Storage.Backend = backend
			writeCorpus(t, cfg)
			engine := newTestEngine(t, cfg)

			res, err := engine.IdentifyImage(ctx, testsupport.PatternImage(200, 200, 1))
			require.NoError(t, err)
			assert.True(t, res.Matched)
			assert.Equal(t, "alpha", res.ID)
			assert.GreaterOrEqual(t, res.Elapsed, time.Duration(0))
			assert.GreaterOrEqual(t, res.GoodMatches, cfg.Match.MinGoodMatches)
			assert.Equal(t, 4, engine.Catalog().Len())
			stored, ok := engine.Catalog().Get("alpha")
			require.True(t, ok)
			assert.Equal(t, testsupport.UnambiguousRows(stored.Descriptors), res.GoodMatches)

			noise, err := engine.IdentifyImage(ctx, testsupport.NoiseImage(200, 200, 42))
			require.NoError(t, err)
			assert.False(t, noise.Matched)
			assert.Equal(t, models.NoMatch, noise.ID)
			assert.Less(t, noise.GoodMatches, res.GoodMatches)

			blank, err := engine.IdentifyImage(ctx, testsupport.BlankImage(200, 200, 200))
			require.NoError(t, err)
			assert.False(t, blank.Matched)
			assert.Equal(t, ReasonNoFeatures, blank.Reason)
		})
	}
}

func TestEngine_mirroredQueryCollapses(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	writeCorpus(t, cfg)
	engine := newTestEngine(t, cfg)

	src := testsupport.PatternImage(200, 200, 1)
	img, err := extract.FromImage(src)
	require.NoError(t, err)
	defer img.Close()
	mirrored := extract.Mirror(img)
	defer mirrored.Close()

	res, err := engine.Identify(ctx, mirrored)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "alpha", res.ID)
	assert.Equal(t, "alpha_flipped", res.EntryID)
}

func TestEngine_warmStartFromCache(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	writeCorpus(t, cfg)
	first := newTestEngine(t, cfg)
	require.NoError(t, first.EnsureLoaded(ctx))
	require.Equal(t, 4, first.Catalog().Len())

	// Corpus files are gone; the second engine must read the persisted cache.
	require.NoError(t, os.RemoveAll(cfg.Corpus.Directory))
	second := newTestEngine(t, cfg)
	path := testsupport.WritePNG(t, t.TempDir(), "query.png", testsupport.PatternImage(200, 200, 2))
	res, err := second.IdentifyFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "beta", res.ID)
	assert.Equal(t, 4, second.Catalog().Len())
}

func TestEngine_emptyCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Corpus.Directory = ""
	engine := newTestEngine(t, cfg)
	res, err := engine.IdentifyImage(context.Background(), testsupport.PatternImage(200, 200, 1))
	require.NoError(t, err)
	assert.Equal(t, ReasonEmptyCatalog, res.Reason)
}

func TestEngine_undecodableBytes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := newTestEngine(t, cfg)
	res, err := engine.IdentifyBytes(context.Background(), []byte("definitely not a png"))
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, ReasonDecode, res.Reason)

	res, err = engine.IdentifyFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	require.NoError(t, err)
	assert.Equal(t, ReasonDecode, res.Reason)
}

func TestEngine_deadline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeCorpus(t, cfg)
	cfg.Match.Timeout = time.Nanosecond
	engine := newTestEngine(t, cfg)
	res, err := engine.IdentifyImage(context.Background(), testsupport.PatternImage(200, 200, 1))
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, ReasonDeadline, res.Reason)
}

func TestEngine_duplicateCacheRows(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	writeCorpus(t, cfg)
	first := newTestEngine(t, cfg)
	require.NoError(t, first.EnsureLoaded(ctx))

	store, err := storage.Open(&cfg.Storage)
	require.NoError(t, err)
	e, _ := first.Catalog().Get("alpha")
	require.NoError(t, store.Append(ctx, []*models.CatalogEntry{e}))
	require.NoError(t, store.Close())

	second := newTestEngine(t, cfg)
	err = second.EnsureLoaded(ctx)
	assert.True(t, errors.Is(err, catalog.ErrDuplicateEntry))

	cfg.Match.DuplicatePolicy = config.DuplicateLastWins
	third := newTestEngine(t, cfg)
	require.NoError(t, third.EnsureLoaded(ctx))
	assert.Equal(t, 4, third.Catalog().Len())
}

func TestEngine_AddEntryAndStats(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	writeCorpus(t, cfg)
	engine := newTestEngine(t, cfg)

	data, err := os.ReadFile(testsupport.WritePNG(t, t.TempDir(), "gamma.png", testsupport.PatternImage(200, 200, 3)))
	require.NoError(t, err)
	out, err := engine.AddEntry(ctx, "gamma", data)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Entries)

	_, err = engine.AddEntry(ctx, "gamma", data)
	assert.True(t, errors.Is(err, catalog.ErrDuplicateEntry))

	st := engine.Stats()
	assert.Equal(t, 6, st.Entries)
	assert.Equal(t, 3, st.Sources)
	assert.Equal(t, config.BackendCSV, st.Backend)
	assert.Greater(t, st.DiskUsageBytes, int64(0))
}

func TestEngine_resultCache(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	writeCorpus(t, cfg)
	engine := newTestEngine(t, cfg)

	data, err := os.ReadFile(filepath.Join(cfg.Corpus.Directory, "alpha.png"))
	require.NoError(t, err)
	first, err := engine.IdentifyBytes(ctx, data)
	require.NoError(t, err)
	require.Equal(t, 1, engine.results.len())
	second, err := engine.IdentifyBytes(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.GoodMatches, second.GoodMatches)
	assert.Equal(t, 1, engine.results.len())

	// Growing the catalog retires cached results.
	gamma, err := os.ReadFile(testsupport.WritePNG(t, t.TempDir(), "gamma.png", testsupport.PatternImage(200, 200, 3)))
	require.NoError(t, err)
	_, err = engine.AddEntry(ctx, "gamma", gamma)
	require.NoError(t, err)
	_, err = engine.IdentifyBytes(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 2, engine.results.len())
}
