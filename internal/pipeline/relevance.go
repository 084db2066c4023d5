package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"techdigest/internal/core"
	"techdigest/internal/persistence"
)

// RelevanceResult summarizes one scoring pass
type RelevanceResult struct {
	Candidates   int // Unscored articles loaded
	Processed    int // Articles annotated
	Summarized   int // Articles at or above the threshold
	OracleErrors int // Score or summary calls that failed
	Failed       int // Articles whose annotation could not be stored
}

// Scorer annotates unscored articles with a relevance score and summary
type Scorer struct {
	db        persistence.Repositories
	oracle    RelevanceOracle
	throttle  Throttle
	batchSize int
	log       *slog.Logger
}

// NewScorer creates the relevance stage. Every oracle call waits on throttle first.
func NewScorer(db persistence.Repositories, oracle RelevanceOracle, throttle Throttle, batchSize int, log *slog.Logger) *Scorer {
	if batchSize <= 0 {
		batchSize = core.ScoreBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scorer{
		db:        db,
		oracle:    oracle,
		throttle:  throttle,
		batchSize: batchSize,
		log:       log.With("component", "relevance"),
	}
}

// Run scores one batch of the newest unscored articles
func (s *Scorer) Run(ctx context.Context) (RelevanceResult, error) {
	var result RelevanceResult

	articles, err := s.db.Articles().ListUnscored(ctx, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list unscored articles: %w", err)
	}
	result.Candidates = len(articles)

	s.log.Info("Scoring articles", "count", len(articles))

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		score, summary, oracleErrors, err := s.annotate(ctx, article)
		result.OracleErrors += oracleErrors
		if err != nil {
			// Cancellation during an oracle call; the article stays unscored
			return result, err
		}

		updated, err := s.db.Articles().SetRelevance(ctx, article.ID, score, summary)
		if err != nil {
			result.Failed++
			s.log.Warn("Failed to store relevance", "article_id", article.ID, "error", err)
			continue
		}
		if !updated {
			s.log.Debug("Article already scored", "article_id", article.ID)
			continue
		}

		result.Processed++
		if summary != nil {
			result.Summarized++
		}
	}

	s.log.Info("Scoring complete",
		"processed", result.Processed,
		"summarized", result.Summarized,
		"oracle_errors", result.OracleErrors)

	return result, nil
}

// annotate returns the score and, when the article qualifies, a summary.
// Oracle failures degrade to a zero score or the placeholder summary; only cancellation is returned.
func (s *Scorer) annotate(ctx context.Context, article core.Article) (float64, *string, int, error) {
	oracleErrors := 0

	if err := s.wait(ctx); err != nil {
		return 0, nil, oracleErrors, err
	}
	score, err := s.oracle.Score(ctx, article.Title, core.Excerpt(article.Content, core.ScoreExcerptLength), article.SourceName)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, oracleErrors, ctxErr
		}
		oracleErrors++
		s.log.Warn("Scoring failed", "article_id", article.ID, "error", err)
		score = 0
	}

	if score < core.RelevanceThreshold {
		return score, nil, oracleErrors, nil
	}

	if err := s.wait(ctx); err != nil {
		return 0, nil, oracleErrors, err
	}
	summary, err := s.oracle.Summarize(ctx, article.Title, core.Excerpt(article.Content, core.SummaryExcerptLength))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, oracleErrors, ctxErr
		}
		oracleErrors++
		s.log.Warn("Summary failed", "article_id", article.ID, "error", err)
		summary = core.SummaryUnavailable
	}

	return score, &summary, oracleErrors, nil
}

func (s *Scorer) wait(ctx context.Context) error {
	if s.throttle == nil {
		return ctx.Err()
	}
	return s.throttle.Wait(ctx)
}
