package pipeline

import (
	"context"
	"fmt"
	"time"

	"techdigest/internal/core"
	"techdigest/internal/persistence"
)

// Selector picks the articles for one user's digest
type Selector struct {
	db persistence.Repositories
}

func NewSelector(db persistence.Repositories) *Selector {
	return &Selector{db: db}
}

// Select returns up to the user's article count of qualifying articles, best first.
// Articles ever sent to the user are excluded; only the last SelectionWindow of ingestion is considered.
func (s *Selector) Select(ctx context.Context, user core.User, now time.Time) ([]core.Article, error) {
	sent, err := s.db.SentArticles().ArticleIDsForUser(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent articles: %w", err)
	}

	articles, err := s.db.Articles().ListCandidates(ctx, persistence.CandidateQuery{
		MinScore:     core.RelevanceThreshold,
		GatheredFrom: now.Add(-core.SelectionWindow),
		ExcludeIDs:   sent,
		Limit:        user.EffectiveArticleCount(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select articles: %w", err)
	}
	return articles, nil
}
