package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"techdigest/internal/config"
	"techdigest/internal/email"
	"techdigest/internal/feeds"
	"techdigest/internal/llm"
	"techdigest/internal/logger"
	"techdigest/internal/persistence"
	"techdigest/internal/pipeline"
)

// stage flags name the pipeline stages a command needs
type stage int

const (
	stageGather stage = 1 << iota
	stageProcess
	stageSend

	stageAll = stageGather | stageProcess | stageSend
)

// runtime holds everything a command opened and must release
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *persistence.SQLDB
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Warn("Failed to release resource", "error", err)
		}
	}
}

// loadConfig reads configuration and installs the configured logger
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.New(cfg.Logging), nil
}

// openDatabase connects to the configured store and applies pending migrations
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) (*persistence.SQLDB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	dialect, err := persistence.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, config.Duration(cfg.Database.Timeout, 5*time.Second))
	defer cancel()

	db, err := persistence.Open(openCtx, dialect, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if migrate {
		if err := persistence.NewMigrationManager(db, log).Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return db, nil
}

// newGenerator creates the configured LLM backend, wrapped in a circuit breaker when enabled
func newGenerator(ctx context.Context, cfg *config.Config, log *slog.Logger) (llm.Generator, func() error, error) {
	if err := cfg.RequireOracle(); err != nil {
		return nil, nil, err
	}

	var (
		gen    llm.Generator
		closer = func() error { return nil }
	)

	provider := cfg.OracleProvider()
	timeout := config.Duration(cfg.AI.Timeout, 30*time.Second)
	switch provider {
	case "openai":
		gen = llm.NewOpenAIGenerator(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model, timeout)
	default:
		g, err := llm.NewGeminiGenerator(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model, timeout)
		if err != nil {
			return nil, nil, err
		}
		gen, closer = g, g.Close
	}

	if cfg.AI.CircuitBreaker {
		gen = llm.NewBreakerGenerator(gen, llm.DefaultBreakerSettings(provider), log)
	}

	log.Debug("LLM backend ready", "provider", provider, "circuit_breaker", cfg.AI.CircuitBreaker)
	return gen, closer, nil
}

// newMailer creates the configured email transport
func newMailer(cfg *config.Config, log *slog.Logger) (pipeline.Mailer, error) {
	if cfg.Email.Transport == "log" {
		return email.NewLogSender(log), nil
	}

	if err := cfg.RequireMailer(); err != nil {
		return nil, err
	}

	return email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
		Timeout:  config.Duration(cfg.Email.Timeout, 30*time.Second),
	})
}

// setup loads configuration, opens the database, and builds the stages in need.
// A stage outside need is wired only when its dependencies are configured;
// otherwise running it reports a configuration error.
func setup(ctx context.Context, need stage) (*runtime, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg, log, true)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	builder := pipeline.NewBuilder(db).
		WithLogger(log).
		WithLocation(cfg.Location()).
		WithLimits(cfg.Feeds.MaxItemsPerFeed, cfg.Pipeline.ScoreBatchSize).
		WithFetcher(feeds.NewFetcher(config.Duration(cfg.Feeds.Timeout, 30*time.Second), cfg.Feeds.UserAgent))

	gen, closeGen, err := newGenerator(ctx, cfg, log)
	switch {
	case err == nil:
		rt.closers = append(rt.closers, closeGen)
		builder.WithOracle(llm.NewClient(gen), llm.NewThrottle(config.Duration(cfg.AI.ThrottleInterval, time.Second)))
	case need&stageProcess != 0:
		rt.Close()
		return nil, err
	default:
		log.Warn("Article processing disabled", "error", err)
	}

	mailer, err := newMailer(cfg, log)
	switch {
	case err == nil:
		builder.WithMailer(mailer)
	case need&stageSend != 0:
		rt.Close()
		return nil, err
	default:
		log.Warn("Newsletter delivery disabled", "error", err)
	}

	p, err := builder.Build()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.pipeline = p

	return rt, nil
}
