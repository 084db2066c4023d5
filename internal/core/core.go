package core

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies how a source's URL is consumed.
type SourceType string

const (
	SourceTypeFeed       SourceType = "rss"
	SourceTypeAggregator SourceType = "google_news"
)

// Frequency is a user's delivery cadence.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiWeekly Frequency = "bi-weekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether f is one of the known cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// DeliveryStatus is the outcome of one (user, day) delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Pipeline defaults. Schedule and selection read these instead of inlining literals.
const (
	DefaultDeliveryDay  = time.Monday
	DefaultArticleCount = 5
	MinArticleCount     = 3
	MaxArticleCount     = 15

	// MinOracleInterval is the floor on spacing between oracle calls
	MinOracleInterval = time.Second

	RelevanceThreshold = 0.6
	SelectionWindow    = 7 * 24 * time.Hour
	ScoreBatchSize     = 20
	MaxFeedItems       = 10

	ScoreExcerptLength   = 500
	SummaryExcerptLength = 1000

	SummaryUnavailable = "Summary unavailable"

	// DateLayout is the calendar-day key used for delivery fencing.
	DateLayout = "2006-01-02"
)

// Source is a feed the ingestion stage reads from.
type Source struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`       // Unique across sources
	Type      SourceType `json:"type"`      // rss or google_news
	Category  string     `json:"category"`  // Optional label from the seed file
	Keywords  []string   `json:"keywords"`  // Search terms for aggregator sources
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Article is one ingested item. Score and Summary are nil until the relevance stage runs.
type Article struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"` // Unique for the lifetime of the store
	Content        string    `json:"content"`
	Summary        *string   `json:"summary,omitempty"`
	SourceID       string    `json:"source_id"`
	SourceName     string    `json:"source_name"`
	PublishedAt    time.Time `json:"published_at"`
	GatheredAt     time.Time `json:"gathered_at"`
	RelevanceScore *float64  `json:"relevance_score,omitempty"`
	TopicCategory  string    `json:"topic_category"`
	CreatedAt      time.Time `json:"created_at"`
}

// Scored reports whether the relevance stage has annotated the article.
func (a Article) Scored() bool {
	return a.RelevanceScore != nil
}

// SummaryText returns the summary or an empty string.
func (a Article) SummaryText() string {
	if a.Summary == nil {
		return ""
	}
	return *a.Summary
}

// User is a newsletter subscriber. The pipeline never writes users.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Topics       []string      `json:"topics"`
	Frequency    Frequency     `json:"frequency"`
	DeliveryDay  *time.Weekday `json:"delivery_day,omitempty"`
	DeliveryTime string        `json:"delivery_time"` // HH:MM, informational
	ArticleCount int           `json:"article_count"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// EffectiveDeliveryDay returns the configured weekday or DefaultDeliveryDay.
func (u User) EffectiveDeliveryDay() time.Weekday {
	if u.DeliveryDay == nil {
		return DefaultDeliveryDay
	}
	return *u.DeliveryDay
}

// EffectiveArticleCount returns the requested count or DefaultArticleCount when unset.
func (u User) EffectiveArticleCount() int {
	if u.ArticleCount <= 0 {
		return DefaultArticleCount
	}
	return u.ArticleCount
}

// DisplayName is the greeting name used in digests.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) == "" {
		return "there"
	}
	return u.Name
}

// Validate checks the fields the store enforces with CHECK constraints.
func (u User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("user email is required")
	}
	if !u.Frequency.Valid() {
		return fmt.Errorf("user %s: unknown frequency %q", u.Email, u.Frequency)
	}
	if u.ArticleCount != 0 && (u.ArticleCount < MinArticleCount || u.ArticleCount > MaxArticleCount) {
		return fmt.Errorf("user %s: article_count %d outside [%d, %d]", u.Email, u.ArticleCount, MinArticleCount, MaxArticleCount)
	}
	return nil
}

// SentArticle records that an article went to a user. Unique on (ArticleID, UserEmail).
type SentArticle struct {
	ArticleID     string    `json:"article_id"`
	UserEmail     string    `json:"user_email"`
	SentAt        time.Time `json:"sent_at"`
	TopicCategory string    `json:"topic_category"`
	ArticleTitle  string    `json:"article_title"` // Title snapshot at send time
}

// NewsletterDelivery is one delivery attempt for a user on a calendar day.
type NewsletterDelivery struct {
	ID           string         `json:"id"`
	UserEmail    string         `json:"user_email"`
	DeliveryDate string         `json:"delivery_date"` // DateLayout
	ArticleCount int            `json:"article_count"`
	Status       DeliveryStatus `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
}

// DeliveryDate formats the calendar day of t, in t's location, as the delivery fence key.
// Callers pass times already converted to the schedule timezone.
func DeliveryDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Excerpt returns at most n runes of s.
func Excerpt(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
