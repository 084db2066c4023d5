package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"techdigest/internal/core"
)

func newTestDB(t *testing.T) *SQLDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "techdigest.db")

	db, err := Open(context.Background(), DialectSQLite, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := NewMigrationManager(db, nil).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

func TestOpen_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "store.db")

	db, err := Open(context.Background(), DialectSQLite, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Error("Database directory should be created")
	}
	if db.Dialect() != DialectSQLite {
		t.Errorf("Expected sqlite dialect, got %s", db.Dialect())
	}
}

func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"postgres":   DialectPostgres,
		"PostgreSQL": DialectPostgres,
		"sqlite":     DialectSQLite,
		"sqlite3":    DialectSQLite,
		"":           DialectSQLite,
	}
	for in, want := range tests {
		got, err := ParseDialect(in)
		if err != nil {
			t.Errorf("ParseDialect(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDialect(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	manager := NewMigrationManager(db, nil)

	if err := manager.Migrate(context.Background()); err != nil {
		t.Fatalf("Second Migrate failed: %v", err)
	}

	status, err := manager.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status) == 0 {
		t.Fatal("Expected at least one migration")
	}
	for _, s := range status {
		if !s.Applied {
			t.Errorf("Expected migration %d to be applied", s.Version)
		}
	}
	if status[0].Description != "initial schema" {
		t.Errorf("Expected description 'initial schema', got %q", status[0].Description)
	}
}

func TestMigrate_Rollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	manager := NewMigrationManager(db, nil)

	if err := manager.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status[len(status)-1].Applied {
		t.Error("Expected newest migration to be pending after rollback")
	}

	for range status {
		_ = manager.Rollback(ctx)
	}
	if err := manager.Rollback(ctx); err == nil {
		t.Error("Expected error when nothing is left to roll back")
	}

	// schema uses IF NOT EXISTS so reapplying is safe
	if err := manager.Migrate(ctx); err != nil {
		t.Fatalf("Migrate after rollback failed: %v", err)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		name        string
		version     int
		description string
		ok          bool
	}{
		{"001_initial_schema.sql", 1, "initial schema", true},
		{"012_add_index.sql", 12, "add index", true},
		{"initial.sql", 0, "", false},
		{"abc_schema.sql", 0, "", false},
		{"000_zero.sql", 0, "", false},
		{"002_.sql", 0, "", false},
	}
	for _, tt := range tests {
		version, description, ok := parseMigrationName(tt.name)
		if version != tt.version || description != tt.description || ok != tt.ok {
			t.Errorf("parseMigrationName(%q) = %d, %q, %v", tt.name, version, description, ok)
		}
	}
}

func TestArticles_InsertOrSkipByURL(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &core.Article{Title: "First", URL: "https://example.com/a", Content: "body", TopicCategory: "Production Tools"}
	inserted, err := db.Articles().CreateIfAbsent(ctx, first)
	if err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if !inserted {
		t.Error("Expected first insert to write a row")
	}

	dup := &core.Article{Title: "Duplicate", URL: "https://example.com/a"}
	inserted, err = db.Articles().CreateIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("Duplicate insert should not error: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate insert to be skipped")
	}

	count, err := db.Articles().Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 article, got %d", count)
	}

	stored, err := db.Articles().GetByURL(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("GetByURL failed: %v", err)
	}
	if stored == nil || stored.Title != "First" {
		t.Fatalf("Expected original article to be kept, got %+v", stored)
	}
	if stored.RelevanceScore != nil || stored.Summary != nil {
		t.Error("Expected new article to be unscored")
	}

	missing, err := db.Articles().Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing article")
	}
}

func TestArticles_ListUnscoredAndSetRelevance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	for i, url := range []string{"https://example.com/old", "https://example.com/new", "https://example.com/mid"} {
		gathered := base.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour)
		if _, err := db.Articles().CreateIfAbsent(ctx, &core.Article{Title: url, URL: url, GatheredAt: gathered}); err != nil {
			t.Fatalf("CreateIfAbsent failed: %v", err)
		}
	}

	unscored, err := db.Articles().ListUnscored(ctx, 2)
	if err != nil {
		t.Fatalf("ListUnscored failed: %v", err)
	}
	if len(unscored) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(unscored))
	}
	if unscored[0].URL != "https://example.com/new" || unscored[1].URL != "https://example.com/mid" {
		t.Errorf("Expected newest gathered first, got %s, %s", unscored[0].URL, unscored[1].URL)
	}

	updated, err := db.Articles().SetRelevance(ctx, unscored[0].ID, 0.8, strPtr("Short summary"))
	if err != nil {
		t.Fatalf("SetRelevance failed: %v", err)
	}
	if !updated {
		t.Error("Expected first SetRelevance to update")
	}

	// Scores are written once.
	updated, err = db.Articles().SetRelevance(ctx, unscored[0].ID, 0.1, nil)
	if err != nil {
		t.Fatalf("SetRelevance failed: %v", err)
	}
	if updated {
		t.Error("Expected already-scored article to be left alone")
	}

	stored, err := db.Articles().Get(ctx, unscored[0].ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.RelevanceScore == nil || *stored.RelevanceScore != 0.8 {
		t.Errorf("Expected score 0.8, got %v", stored.RelevanceScore)
	}
	if stored.SummaryText() != "Short summary" {
		t.Errorf("Expected summary, got %q", stored.SummaryText())
	}

	remaining, err := db.Articles().ListUnscored(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnscored failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("Expected 2 unscored articles, got %d", len(remaining))
	}
}

func TestArticles_ListCandidates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

	articles := []*core.Article{
		{ID: "a-high", URL: "https://example.com/high", Title: "high", RelevanceScore: floatPtr(0.9), GatheredAt: now.Add(-time.Hour)},
		{ID: "b-tie", URL: "https://example.com/tie-b", Title: "tie b", RelevanceScore: floatPtr(0.7), GatheredAt: now.Add(-2 * time.Hour)},
		{ID: "a-tie", URL: "https://example.com/tie-a", Title: "tie a", RelevanceScore: floatPtr(0.7), GatheredAt: now.Add(-3 * time.Hour)},
		{ID: "low", URL: "https://example.com/low", Title: "low", RelevanceScore: floatPtr(0.59), GatheredAt: now.Add(-time.Hour)},
		{ID: "old", URL: "https://example.com/old", Title: "old", RelevanceScore: floatPtr(0.95), GatheredAt: now.Add(-8 * 24 * time.Hour)},
		{ID: "unscored", URL: "https://example.com/unscored", Title: "unscored", GatheredAt: now},
	}
	for _, a := range articles {
		if _, err := db.Articles().CreateIfAbsent(ctx, a); err != nil {
			t.Fatalf("CreateIfAbsent failed: %v", err)
		}
	}

	got, err := db.Articles().ListCandidates(ctx, CandidateQuery{
		MinScore:     core.RelevanceThreshold,
		GatheredFrom: now.Add(-core.SelectionWindow),
		Limit:        10,
	})
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}

	want := []string{"a-high", "a-tie", "b-tie"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d candidates, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}

	excluded, err := db.Articles().ListCandidates(ctx, CandidateQuery{
		MinScore:     core.RelevanceThreshold,
		GatheredFrom: now.Add(-core.SelectionWindow),
		ExcludeIDs:   []string{"a-high"},
		Limit:        1,
	})
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(excluded) != 1 || excluded[0].ID != "a-tie" {
		t.Errorf("Expected only a-tie after exclusion, got %+v", excluded)
	}
}

func TestSentArticles_UniquePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	article := &core.Article{URL: "https://example.com/sent", Title: "Sent"}
	if _, err := db.Articles().CreateIfAbsent(ctx, article); err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}

	sent := &core.SentArticle{ArticleID: article.ID, UserEmail: "a@example.com", ArticleTitle: "Sent"}
	inserted, err := db.SentArticles().CreateIfAbsent(ctx, sent)
	if err != nil || !inserted {
		t.Fatalf("Expected first sent record to insert, got %v, %v", inserted, err)
	}
	inserted, err = db.SentArticles().CreateIfAbsent(ctx, sent)
	if err != nil {
		t.Fatalf("Duplicate sent record should not error: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate sent record to be skipped")
	}

	if _, err := db.SentArticles().CreateIfAbsent(ctx, &core.SentArticle{ArticleID: article.ID, UserEmail: "b@example.com"}); err != nil {
		t.Fatalf("Other user insert failed: %v", err)
	}

	ids, err := db.SentArticles().ArticleIDsForUser(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("ArticleIDsForUser failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != article.ID {
		t.Errorf("Expected [%s], got %v", article.ID, ids)
	}
}

func TestDeliveries_HasSent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

	failed := &core.NewsletterDelivery{
		UserEmail:    "a@example.com",
		DeliveryDate: "2024-01-08",
		Status:       core.DeliveryFailed,
		ErrorMessage: strPtr("smtp: connection refused"),
		CreatedAt:    now,
	}
	if err := db.Deliveries().Create(ctx, failed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sent, err := db.Deliveries().HasSent(ctx, "a@example.com", "2024-01-08")
	if err != nil {
		t.Fatalf("HasSent failed: %v", err)
	}
	if sent {
		t.Error("A failed delivery must not fence the day")
	}

	sentAt := now.Add(time.Minute)
	ok := &core.NewsletterDelivery{
		UserEmail:    "a@example.com",
		DeliveryDate: "2024-01-08",
		ArticleCount: 3,
		Status:       core.DeliverySent,
		CreatedAt:    sentAt,
		SentAt:       &sentAt,
	}
	if err := db.Deliveries().Create(ctx, ok); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sent, err = db.Deliveries().HasSent(ctx, "a@example.com", "2024-01-08")
	if err != nil {
		t.Fatalf("HasSent failed: %v", err)
	}
	if !sent {
		t.Error("Expected sent delivery to fence the day")
	}

	other, err := db.Deliveries().HasSent(ctx, "a@example.com", "2024-01-09")
	if err != nil {
		t.Fatalf("HasSent failed: %v", err)
	}
	if other {
		t.Error("Fence must be per calendar day")
	}

	// A second sent row for the same day violates the partial unique index.
	dup := &core.NewsletterDelivery{UserEmail: "a@example.com", DeliveryDate: "2024-01-08", Status: core.DeliverySent}
	if err := db.Deliveries().Create(ctx, dup); err == nil {
		t.Error("Expected duplicate sent row to be rejected")
	}

	rows, err := db.Deliveries().ListByDate(ctx, "2024-01-08")
	if err != nil {
		t.Fatalf("ListByDate failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(rows))
	}
	if rows[0].Status != core.DeliverySent || rows[0].SentAt == nil {
		t.Errorf("Expected newest row to be the sent delivery, got %+v", rows[0])
	}
	if rows[1].ErrorMessage == nil || *rows[1].ErrorMessage != "smtp: connection refused" {
		t.Errorf("Expected error message to round-trip, got %v", rows[1].ErrorMessage)
	}
	if rows[1].DeliveryDate != "2024-01-08" {
		t.Errorf("Expected delivery date 2024-01-08, got %s", rows[1].DeliveryDate)
	}

	byUser, err := db.Deliveries().ListByUser(ctx, "a@example.com", 1)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(byUser) != 1 {
		t.Errorf("Expected limit to apply, got %d rows", len(byUser))
	}
}

func TestUsersAndSources(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sunday := time.Sunday
	user := &core.User{
		Email:        "a@example.com",
		Name:         "Ada",
		Topics:       []string{"ai", "dubbing"},
		Frequency:    core.FrequencyWeekly,
		DeliveryDay:  &sunday,
		DeliveryTime: "09:00",
		Active:       true,
	}
	inserted, err := db.Users().CreateIfAbsent(ctx, user)
	if err != nil || !inserted {
		t.Fatalf("Expected user insert, got %v, %v", inserted, err)
	}
	inserted, err = db.Users().CreateIfAbsent(ctx, &core.User{Email: "a@example.com", Frequency: core.FrequencyDaily, Active: true})
	if err != nil {
		t.Fatalf("Duplicate user should not error: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate email to be skipped")
	}
	if _, err := db.Users().CreateIfAbsent(ctx, &core.User{Email: "off@example.com", Frequency: core.FrequencyDaily}); err != nil {
		t.Fatalf("Inactive user insert failed: %v", err)
	}
	if _, err := db.Users().CreateIfAbsent(ctx, &core.User{Email: "bad@example.com", Frequency: "hourly"}); err == nil {
		t.Error("Expected invalid user to be rejected")
	}

	active, err := db.Users().ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active user, got %d", len(active))
	}
	got := active[0]
	if got.DeliveryDay == nil || *got.DeliveryDay != time.Sunday {
		t.Errorf("Expected Sunday delivery day, got %v", got.DeliveryDay)
	}
	if got.ArticleCount != core.DefaultArticleCount {
		t.Errorf("Expected default article count, got %d", got.ArticleCount)
	}
	if len(got.Topics) != 2 || got.Topics[1] != "dubbing" {
		t.Errorf("Expected topics to round-trip, got %v", got.Topics)
	}
	if got.DeliveryTime != "09:00" {
		t.Errorf("Expected delivery time 09:00, got %q", got.DeliveryTime)
	}

	source := &core.Source{Name: "Wire", URL: "https://example.com/feed", Active: true, Keywords: []string{"streaming"}}
	if inserted, err := db.Sources().CreateIfAbsent(ctx, source); err != nil || !inserted {
		t.Fatalf("Expected source insert, got %v, %v", inserted, err)
	}
	if inserted, err := db.Sources().CreateIfAbsent(ctx, &core.Source{Name: "Copy", URL: "https://example.com/feed"}); err != nil || inserted {
		t.Fatalf("Expected duplicate source to be skipped, got %v, %v", inserted, err)
	}
	if _, err := db.Sources().CreateIfAbsent(ctx, &core.Source{Name: "Off", URL: "https://example.com/off"}); err != nil {
		t.Fatalf("Inactive source insert failed: %v", err)
	}

	sources, err := db.Sources().ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(sources) != 1 || sources[0].Type != core.SourceTypeFeed {
		t.Errorf("Expected one rss source, got %+v", sources)
	}
	all, err := db.Sources().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 sources, got %d", len(all))
	}
}

func TestTransaction_Rollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if _, err := tx.Articles().CreateIfAbsent(ctx, &core.Article{URL: "https://example.com/tx", Title: "tx"}); err != nil {
		t.Fatalf("CreateIfAbsent in tx failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	count, err := db.Articles().Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected rollback to discard insert, got %d rows", count)
	}
}
