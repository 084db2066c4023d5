package pipeline

import (
	"context"
)

// FeedFetcher retrieves raw feed documents
type FeedFetcher interface {
	// Fetch returns the document body at url
	Fetch(ctx context.Context, url string) (string, error)
}

// ArticleCategorizer assigns a topic label from title and content
type ArticleCategorizer interface {
	Categorize(title, content string) string
}

// RelevanceOracle scores and summarizes articles with a language model
type RelevanceOracle interface {
	// Score returns a relevance value in [0,1]
	Score(ctx context.Context, title, excerpt, sourceName string) (float64, error)

	// Summarize returns a short summary of the article
	Summarize(ctx context.Context, title, excerpt string) (string, error)
}

// Throttle blocks until the next oracle call may start
type Throttle interface {
	Wait(ctx context.Context) error
}

// Mailer delivers one rendered digest
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}
