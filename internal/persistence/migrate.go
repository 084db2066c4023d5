package persistence

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

const migrationsTable = "schema_migrations"

// Migration is one embedded schema change, named NNN_description.sql
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports whether a known migration has been applied
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// MigrationManager applies the embedded schema for the connection's dialect
type MigrationManager struct {
	db  *SQLDB
	fs  fs.FS
	log *slog.Logger
}

// NewMigrationManager creates a migration manager for db
func NewMigrationManager(db *SQLDB, log *slog.Logger) *MigrationManager {
	if log == nil {
		log = slog.Default()
	}

	dir := "migrations/sqlite"
	if db.dialect == DialectPostgres {
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		// dir is a compile-time embed path
		panic(err)
	}

	return &MigrationManager{
		db:  db,
		fs:  sub,
		log: log.With("component", "migrate", "dialect", string(db.dialect)),
	}
}

// Migrate applies every pending migration in version order, each in its own transaction
func (m *MigrationManager) Migrate(ctx context.Context) error {
	available, applied, err := m.plan(ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, migration := range available {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Description, err)
		}
		count++
	}

	if count == 0 {
		m.log.Debug("Schema is up to date")
		return nil
	}
	m.log.Info("Migrations applied", "count", count)
	return nil
}

// Status lists every embedded migration with its applied flag
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	available, applied, err := m.plan(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(available))
	for _, migration := range available {
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied[migration.Version],
		})
	}
	return status, nil
}

// Rollback removes the record of the newest applied migration.
// Schema objects it created are left in place and must be dropped by hand.
func (m *MigrationManager) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var last int
	query, args, err := m.db.dialect.builder().
		Select("COALESCE(MAX(version), 0)").
		From(migrationsTable).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if err := m.db.db.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last migration: %w", err)
	}
	if last == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	query, args, err = m.db.dialect.builder().
		Delete(migrationsTable).
		Where(sq.Eq{"version": last}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build rollback: %w", err)
	}
	if _, err := m.db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", last, err)
	}

	m.log.Warn("Migration record removed; revert its schema changes manually", "version", last)
	return nil
}

// plan returns the embedded migrations sorted by version and the set already applied
func (m *MigrationManager) plan(ctx context.Context) ([]Migration, map[int]bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, nil, err
	}

	available, err := m.load()
	if err != nil {
		return nil, nil, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, nil, err
	}
	return available, applied, nil
}

func (m *MigrationManager) ensureTable(ctx context.Context) error {
	appliedAt := "TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()"
	if m.db.dialect == DialectSQLite {
		appliedAt = "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"
	}

	ddl := `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at ` + appliedAt + `
	)`
	if _, err := m.db.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", migrationsTable, err)
	}
	return nil
}

func (m *MigrationManager) applied(ctx context.Context) (map[int]bool, error) {
	query, args, err := m.db.dialect.builder().
		Select("version").
		From(migrationsTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := m.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) load() ([]Migration, error) {
	names, err := fs.Glob(m.fs, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		version, description, ok := parseMigrationName(name)
		if !ok {
			m.log.Warn("Skipping migration file with invalid name", "file", name)
			continue
		}

		body, err := fs.ReadFile(m.fs, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(body),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationName splits "001_initial_schema.sql" into 1 and "initial schema"
func parseMigrationName(name string) (int, string, bool) {
	prefix, rest, found := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
	if !found || rest == "" {
		return 0, "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", false
	}
	return version, strings.ReplaceAll(rest, "_", " "), true
}

func (m *MigrationManager) apply(ctx context.Context, migration Migration) error {
	m.log.Info("Applying migration", "version", migration.Version, "description", migration.Description)

	tx, err := m.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return err
	}

	query, args, err := m.db.dialect.builder().
		Insert(migrationsTable).
		Columns("version", "description").
		Values(migration.Version, migration.Description).
		Suffix(fmt.Sprintf(onConflictDoNothing, "version")).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build migration record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
