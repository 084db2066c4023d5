package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdigest/internal/core"
	"techdigest/internal/persistence"
)

const testSeedFile = `
rss_sources:
  - name: "Streaming AI"
    url: "https://news.google.com/rss/search?q=streaming+ai"
    category: "Gen AI in Content"
    active: true
  - name: "Retired"
    url: "https://example.com/old.xml"
    active: false
users:
  - email: "dana@example.com"
    name: "Dana"
    frequency: weekly
    delivery_day: monday
`

// testEnv writes a config pointing at a temp SQLite database and blanks
// variables that would override it
func testEnv(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "DB_DSN", "GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY",
		"OPENAI_API_KEY", "AI_PROVIDER", "EMAIL_TRANSPORT",
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "digest.db")
	configPath = filepath.Join(dir, "config.yaml")
	body := "database:\n  driver: sqlite3\n  dsn: " + dbPath + "\nemail:\n  transport: log\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0644))
	return configPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedCommand(t *testing.T) {
	configPath, dbPath := testEnv(t)
	seedPath := filepath.Join(filepath.Dir(configPath), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(testSeedFile), 0644))

	out, err := execute(t, "--config", configPath, "seed", "--file", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Sources added")

	// Seeding twice leaves the same rows
	_, err = execute(t, "--config", configPath, "seed", "--file", seedPath)
	require.NoError(t, err)

	ctx := context.Background()
	db, err := persistence.Open(ctx, persistence.DialectSQLite, dbPath)
	require.NoError(t, err)
	defer db.Close()

	sources, err := db.Sources().List(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)

	users, err := db.Users().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "dana@example.com", users[0].Email)
}

func TestStatusCommand(t *testing.T) {
	configPath, _ := testEnv(t)

	out, err := execute(t, "--config", configPath, "status", "--date", "2024-01-08")
	require.NoError(t, err)
	assert.Contains(t, out, "Deliveries for 2024-01-08")
	assert.Contains(t, out, "No deliveries recorded")

	_, err = execute(t, "--config", configPath, "status", "--date", "01/08/2024")
	assert.Error(t, err)
}

func TestProcessRequiresOracle(t *testing.T) {
	configPath, _ := testEnv(t)

	_, err := execute(t, "--config", configPath, "process")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfiguration), "got %v", err)
}

func TestMigrateStatusCommand(t *testing.T) {
	configPath, _ := testEnv(t)

	_, err := execute(t, "--config", configPath, "migrate", "up")
	require.NoError(t, err)

	out, err := execute(t, "--config", configPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied: 1 | Pending: 0")
}

func TestPrintDeliveries(t *testing.T) {
	sentAt := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	msg := "smtp: 550 mailbox unavailable"

	var out bytes.Buffer
	printDeliveries(&out, "2024-01-08", []core.NewsletterDelivery{
		{UserEmail: "dana@example.com", Status: core.DeliverySent, ArticleCount: 5, SentAt: &sentAt},
		{UserEmail: "lee@example.com", Status: core.DeliveryFailed, ErrorMessage: &msg},
	})

	s := out.String()
	assert.Contains(t, s, "dana@example.com")
	assert.Contains(t, s, "smtp: 550 mailbox unavailable")
	assert.Contains(t, s, "Sent: 1 | Failed: 1 | Total: 2")
}
