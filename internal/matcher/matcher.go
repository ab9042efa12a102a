// Package matcher ranks catalog entries against a query by ratio-tested
// binary descriptor matches that survive a geometric consistency check.
package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/fileid"
	"github.com/hyperjump/miwake/internal/geometry"
	"github.com/hyperjump/miwake/internal/models"
	"github.com/hyperjump/miwake/internal/vector"
	"github.com/hyperjump/miwake/pkg/utils"
	"go.uber.org/zap"
)

// neighbors is the k used for the ratio test.
const neighbors = 2

// Options configures candidate scoring.
type Options struct {
	Ratio            float64
	MinGoodMatches   int
	RansacThreshold  float64
	RansacMaxIters   int
	RansacConfidence float64
	QuadSize         float64
	MinArea          float64
	Workers          int
	Timeout          time.Duration
	Index            string
	LSH              vector.LSHOptions
}

// OptionsFromConfig converts match settings into matcher options.
func OptionsFromConfig(cfg *config.MatchConfig) Options {
	return Options{
		Ratio:            cfg.Ratio,
		MinGoodMatches:   cfg.MinGoodMatches,
		RansacThreshold:  cfg.RansacThreshold,
		RansacMaxIters:   cfg.RansacMaxIters,
		RansacConfidence: cfg.RansacConfidence,
		QuadSize:         cfg.QuadSize,
		MinArea:          cfg.MinArea,
		Workers:          cfg.Workers,
		Timeout:          cfg.Timeout,
		Index:            cfg.Index,
		LSH: vector.LSHOptions{
			Tables:  cfg.LSHTables,
			KeyBits: cfg.LSHKeyBits,
			Seed:    cfg.LSHSeed,
		},
	}
}

// DefaultOptions returns the matcher settings used when no config is supplied.
func DefaultOptions() Options {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return OptionsFromConfig(&cfg.Match)
}

// Matcher scores catalog entries against query features. Safe for concurrent use.
type Matcher struct {
	opts      Options
	estimator Estimator
	logger    *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithEstimator replaces the RANSAC homography estimator.
func WithEstimator(e Estimator) Option {
	return func(m *Matcher) { m.estimator = e }
}

// WithLogger sets a logger for per-query summaries.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// New returns a matcher with the given options.
func New(opts Options, options ...Option) *Matcher {
	m := &Matcher{opts: opts}
	for _, o := range options {
		o(m)
	}
	if m.estimator == nil {
		m.estimator = RANSACEstimator{
			Threshold:  opts.RansacThreshold,
			MaxIters:   opts.RansacMaxIters,
			Confidence: opts.RansacConfidence,
		}
	}
	m.logger = utils.OrNop(m.logger)
	return m
}

// Timeout returns the per-query deadline; zero means none.
func (m *Matcher) Timeout() time.Duration {
	return m.opts.Timeout
}

// Match returns the best accepted candidate, or nil when none survives.
// An error is returned only when ctx ends or the per-query deadline passes.
func (m *Matcher) Match(ctx context.Context, query *models.Features, entries []*models.CatalogEntry) (*models.MatchResult, error) {
	ranked, err := m.Rank(ctx, query, entries)
	if err != nil || len(ranked) == 0 {
		return nil, err
	}
	return ranked[0], nil
}

// Rank scores every entry in parallel and returns the accepted candidates,
// best first. Ordering is by good matches, then match ratio, then entry ID.
func (m *Matcher) Rank(ctx context.Context, query *models.Features, entries []*models.CatalogEntry) ([]*models.MatchResult, error) {
	if query == nil || query.Descriptors.Empty() || len(entries) == 0 {
		return nil, nil
	}
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	index, err := vector.NewIndex(m.opts.Index, query.Descriptors, m.opts.LSH)
	if err != nil {
		return nil, err
	}
	scored, err := utils.ParallelMap(ctx, entries, m.opts.Workers,
		func(ctx context.Context, e *models.CatalogEntry) (*models.MatchResult, error) {
			return m.score(index, query, e), nil
		})
	if err != nil {
		return nil, err
	}

	accepted := scored[:0]
	for _, r := range scored {
		if r != nil {
			accepted = append(accepted, r)
		}
	}
	sort.Slice(accepted, func(i, j int) bool { return Better(accepted[i], accepted[j]) })
	m.logger.Debug("matcher ranked candidates",
		zap.Int("entries", len(entries)),
		zap.Int("accepted", len(accepted)))
	return accepted, nil
}

// score runs the ratio test and geometric check for one entry. It returns nil
// when the entry is rejected.
func (m *Matcher) score(index vector.Index, query *models.Features, e *models.CatalogEntry) *models.MatchResult {
	desc := e.Descriptors
	if desc.Empty() || desc.Cols != query.Descriptors.Cols {
		return nil
	}
	var src, dst []geometry.Point
	for i := 0; i < desc.Rows && i < len(e.Keypoints); i++ {
		best, ok := vector.RatioTest(index.KNN(desc.Row(i), neighbors), m.opts.Ratio)
		if !ok {
			continue
		}
		ck, qk := e.Keypoints[i], query.Keypoints[best.Index]
		src = append(src, geometry.Point{X: ck.X, Y: ck.Y})
		dst = append(dst, geometry.Point{X: qk.X, Y: qk.Y})
	}
	good := len(src)
	if good < m.opts.MinGoodMatches {
		return nil
	}
	h, ok := m.estimator.Estimate(src, dst)
	if !ok || !geometry.Plausible(h, m.opts.QuadSize, m.opts.MinArea) {
		return nil
	}
	return &models.MatchResult{
		ID:          fileid.BaseID(e.ID),
		EntryID:     e.ID,
		GoodMatches: good,
		MatchRatio:  float64(good) / float64(desc.Rows) * 100,
	}
}

// Better reports whether a ranks ahead of b.
func Better(a, b *models.MatchResult) bool {
	if a.GoodMatches != b.GoodMatches {
		return a.GoodMatches > b.GoodMatches
	}
	if a.MatchRatio != b.MatchRatio {
		return a.MatchRatio > b.MatchRatio
	}
	return a.EntryID < b.EntryID
}
