package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"techdigest/internal/categorization"
	"techdigest/internal/core"
	"techdigest/internal/feeds"
	"techdigest/internal/persistence"
)

// IngestResult summarizes one ingestion pass
type IngestResult struct {
	SourcesProcessed int
	SourcesFailed    int
	CandidatesSeen   int
	ArticlesInserted int
}

// Ingester pulls every active source and stores new articles
type Ingester struct {
	db          persistence.Repositories
	fetcher     FeedFetcher
	categorizer ArticleCategorizer
	maxItems    int
	log         *slog.Logger
	now         func() time.Time
}

// NewIngester creates the ingestion stage. maxItems caps items taken per feed.
func NewIngester(db persistence.Repositories, fetcher FeedFetcher, categorizer ArticleCategorizer, maxItems int, log *slog.Logger) *Ingester {
	if maxItems <= 0 {
		maxItems = core.MaxFeedItems
	}
	if categorizer == nil {
		categorizer = categorization.NewCategorizer(categorization.DefaultCategories())
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{
		db:          db,
		fetcher:     fetcher,
		categorizer: categorizer,
		maxItems:    maxItems,
		log:         log.With("component", "ingest"),
		now:         time.Now,
	}
}

// Run processes every active source. A failing source is logged and counted; it never aborts the pass.
func (i *Ingester) Run(ctx context.Context) (IngestResult, error) {
	var result IngestResult

	sources, err := i.db.Sources().ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list sources: %w", err)
	}

	i.log.Info("Starting ingestion", "sources", len(sources))

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		inserted, seen, err := i.ingestSource(ctx, source)
		if err != nil {
			result.SourcesFailed++
			i.log.Warn("Source failed", "source", source.Name, "url", source.URL, "error", err)
			continue
		}

		result.SourcesProcessed++
		result.CandidatesSeen += seen
		result.ArticlesInserted += inserted
	}

	i.log.Info("Ingestion complete",
		"processed", result.SourcesProcessed,
		"failed", result.SourcesFailed,
		"inserted", result.ArticlesInserted)

	return result, nil
}

// ingestSource returns the number of new articles and the number of candidates decoded
func (i *Ingester) ingestSource(ctx context.Context, source core.Source) (int, int, error) {
	raw, err := i.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return 0, 0, err
	}

	candidates, err := feeds.Decode(raw, i.maxItems)
	if err != nil {
		return 0, 0, err
	}

	gatheredAt := i.now().UTC()
	inserted := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return inserted, len(candidates), err
		}

		article := core.Article{
			Title:         c.Title,
			URL:           c.Link,
			Content:       c.Snippet,
			SourceID:      source.ID,
			SourceName:    source.Name,
			PublishedAt:   c.PublishedAt,
			GatheredAt:    gatheredAt,
			TopicCategory: i.categorizer.Categorize(c.Title, c.Snippet),
		}

		created, err := i.db.Articles().CreateIfAbsent(ctx, &article)
		if err != nil {
			i.log.Warn("Failed to store article", "source", source.Name, "url", c.Link, "error", err)
			continue
		}
		if created {
			inserted++
		}
	}

	i.log.Debug("Source ingested", "source", source.Name, "candidates", len(candidates), "inserted", inserted)
	return inserted, len(candidates), nil
}
