package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Dialect names a supported SQL driver
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// ParseDialect maps driver names and common aliases to a Dialect
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "sqlite", "sqlite3", "":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (supported: postgres, sqlite3)", name)
	}
}

func (d Dialect) builder() sq.StatementBuilderType {
	if d == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// conn is embedded by every repository; it holds the pool, an optional transaction and the dialect
type conn struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect Dialect
}

func (c conn) query() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c conn) sb() sq.StatementBuilderType {
	return c.dialect.builder()
}

// SQLDB implements Database for PostgreSQL and SQLite
type SQLDB struct {
	db      *sql.DB
	dialect Dialect
	repos
}

type repos struct {
	sources      SourceRepository
	articles     ArticleRepository
	users        UserRepository
	sentArticles SentArticleRepository
	deliveries   DeliveryRepository
}

func newRepos(c conn) repos {
	return repos{
		sources:      &sqlSourceRepo{conn: c},
		articles:     &sqlArticleRepo{conn: c},
		users:        &sqlUserRepo{conn: c},
		sentArticles: &sqlSentArticleRepo{conn: c},
		deliveries:   &sqlDeliveryRepo{conn: c},
	}
}

func (r repos) Sources() SourceRepository           { return r.sources }
func (r repos) Articles() ArticleRepository         { return r.articles }
func (r repos) Users() UserRepository               { return r.users }
func (r repos) SentArticles() SentArticleRepository { return r.sentArticles }
func (r repos) Deliveries() DeliveryRepository      { return r.deliveries }

// Open connects to the database and verifies the connection.
// For SQLite, dsn is a file path; its parent directory is created if needed.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLDB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var (
		db  *sql.DB
		err error
	)

	switch dialect {
	case DialectPostgres:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case DialectSQLite:
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY within a process.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLDB{
		db:      db,
		dialect: dialect,
		repos:   newRepos(conn{db: db, dialect: dialect}),
	}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Dialect returns the SQL dialect of the connection
func (s *SQLDB) Dialect() Dialect { return s.dialect }

func (s *SQLDB) Close() error {
	return s.db.Close()
}

func (s *SQLDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{
		tx:    tx,
		repos: newRepos(conn{db: s.db, tx: tx, dialect: s.dialect}),
	}, nil
}

// sqlTx implements Transaction
type sqlTx struct {
	tx *sql.Tx
	repos
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }
