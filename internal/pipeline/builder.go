package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"techdigest/internal/core"
	"techdigest/internal/persistence"
)

// Builder helps construct a configured Pipeline.
// Stages whose dependencies are missing are left nil and report a configuration error when run.
type Builder struct {
	db          persistence.Database
	fetcher     FeedFetcher
	categorizer ArticleCategorizer
	oracle      RelevanceOracle
	throttle    Throttle
	mailer      Mailer
	loc         *time.Location
	maxItems    int
	batchSize   int
	log         *slog.Logger
	now         func() time.Time
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder(db persistence.Database) *Builder {
	return &Builder{
		db:        db,
		loc:       time.UTC,
		maxItems:  core.MaxFeedItems,
		batchSize: core.ScoreBatchSize,
		log:       slog.Default(),
	}
}

// WithFetcher sets the feed fetcher used by ingestion
func (b *Builder) WithFetcher(f FeedFetcher) *Builder {
	b.fetcher = f
	return b
}

// WithCategorizer overrides the default keyword categorizer
func (b *Builder) WithCategorizer(c ArticleCategorizer) *Builder {
	b.categorizer = c
	return b
}

// WithOracle sets the scoring and summary oracle and the throttle in front of it
func (b *Builder) WithOracle(o RelevanceOracle, t Throttle) *Builder {
	b.oracle = o
	b.throttle = t
	return b
}

// WithMailer sets the digest sender
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithLocation sets the schedule timezone
func (b *Builder) WithLocation(loc *time.Location) *Builder {
	if loc != nil {
		b.loc = loc
	}
	return b
}

// WithLimits sets the per-feed item cap and the scoring batch size
func (b *Builder) WithLimits(maxItems, batchSize int) *Builder {
	if maxItems > 0 {
		b.maxItems = maxItems
	}
	if batchSize > 0 {
		b.batchSize = batchSize
	}
	return b
}

// WithLogger sets the logger
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	if log != nil {
		b.log = log
	}
	return b
}

// WithClock overrides time.Now for every stage
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build constructs the Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.db == nil {
		return nil, fmt.Errorf("%w: database is required", core.ErrConfiguration)
	}

	p := &Pipeline{log: b.log.With("component", "pipeline")}

	if b.fetcher != nil {
		p.Ingester = NewIngester(b.db, b.fetcher, b.categorizer, b.maxItems, b.log)
		if b.now != nil {
			p.Ingester.now = b.now
		}
	}

	if b.oracle != nil {
		p.Scorer = NewScorer(b.db, b.oracle, b.throttle, b.batchSize, b.log)
	}

	if b.mailer != nil {
		p.Deliverer = NewDeliverer(b.db, b.mailer, b.loc, b.log)
		if b.now != nil {
			p.Deliverer.now = b.now
		}
	}

	return p, nil
}
