// Package persistence provides the relational store for sources, articles, subscribers and deliveries
package persistence

import (
	"context"
	"time"

	"techdigest/internal/core"
)

// SourceRepository handles feed source persistence
type SourceRepository interface {
	// CreateIfAbsent inserts a source unless its URL already exists. Reports whether a row was written.
	CreateIfAbsent(ctx context.Context, source *core.Source) (bool, error)

	// ListActive returns active sources ordered by name
	ListActive(ctx context.Context) ([]core.Source, error)

	// List returns all sources ordered by name
	List(ctx context.Context) ([]core.Source, error)
}

// ArticleRepository handles article persistence operations
type ArticleRepository interface {
	// CreateIfAbsent inserts an article unless its URL already exists. Reports whether a row was written.
	CreateIfAbsent(ctx context.Context, article *core.Article) (bool, error)

	// Get retrieves an article by ID, or nil if none exists
	Get(ctx context.Context, id string) (*core.Article, error)

	// GetByURL retrieves an article by its URL, or nil if none exists
	GetByURL(ctx context.Context, url string) (*core.Article, error)

	// ListUnscored returns up to limit articles with no relevance score, newest gathered first
	ListUnscored(ctx context.Context, limit int) ([]core.Article, error)

	// SetRelevance writes score and summary together. Already scored articles are left untouched.
	SetRelevance(ctx context.Context, id string, score float64, summary *string) (bool, error)

	// ListCandidates returns scored articles for a digest
	ListCandidates(ctx context.Context, q CandidateQuery) ([]core.Article, error)

	// Count returns the number of stored articles
	Count(ctx context.Context) (int, error)
}

// CandidateQuery filters digest candidates
type CandidateQuery struct {
	MinScore     float64   // Inclusive lower bound on relevance_score
	GatheredFrom time.Time // Inclusive lower bound on gathered_at
	ExcludeIDs   []string  // Article IDs that must not be returned
	Limit        int
}

// UserRepository handles subscriber persistence
type UserRepository interface {
	// CreateIfAbsent inserts a user unless the email already exists
	CreateIfAbsent(ctx context.Context, user *core.User) (bool, error)

	// ListActive returns active users ordered by email
	ListActive(ctx context.Context) ([]core.User, error)

	// GetByEmail retrieves a user, or nil if none exists
	GetByEmail(ctx context.Context, email string) (*core.User, error)
}

// SentArticleRepository tracks which articles each user has received
type SentArticleRepository interface {
	// CreateIfAbsent records a sent article unless (article, email) already exists
	CreateIfAbsent(ctx context.Context, sent *core.SentArticle) (bool, error)

	// ArticleIDsForUser returns every article ID ever sent to email
	ArticleIDsForUser(ctx context.Context, email string) ([]string, error)
}

// DeliveryRepository stores newsletter delivery attempts
type DeliveryRepository interface {
	// Create inserts a delivery row
	Create(ctx context.Context, delivery *core.NewsletterDelivery) error

	// HasSent reports whether a sent row exists for (email, date)
	HasSent(ctx context.Context, email, date string) (bool, error)

	// ListByDate returns all deliveries for a calendar day, newest first
	ListByDate(ctx context.Context, date string) ([]core.NewsletterDelivery, error)

	// ListByUser returns up to limit deliveries for a user, newest first
	ListByUser(ctx context.Context, email string, limit int) ([]core.NewsletterDelivery, error)
}

// Repositories groups the repositories available on a connection or transaction
type Repositories interface {
	Sources() SourceRepository
	Articles() ArticleRepository
	Users() UserRepository
	SentArticles() SentArticleRepository
	Deliveries() DeliveryRepository
}

// Database represents the main database interface that aggregates all repositories
type Database interface {
	Repositories

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	Repositories

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}
