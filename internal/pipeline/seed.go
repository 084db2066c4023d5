package pipeline

import (
	"context"
	"log/slog"

	"techdigest/internal/core"
	"techdigest/internal/feeds"
	"techdigest/internal/persistence"
)

// SeedResult counts rows written by Seed
type SeedResult struct {
	SourcesAdded int
	UsersAdded   int
	Skipped      int // Rows that already existed
	Failed       int
}

// Seed inserts sources and users, skipping any whose URL or email already exists.
// Invalid rows are logged and counted.
func Seed(ctx context.Context, db persistence.Repositories, sources []core.Source, users []core.User, log *slog.Logger) (SeedResult, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "seed")

	var result SeedResult
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if source.ID == "" {
			source.ID = feeds.SourceID(source.URL)
		}
		added, err := db.Sources().CreateIfAbsent(ctx, &source)
		switch {
		case err != nil:
			result.Failed++
			log.Warn("Failed to add source", "source", source.Name, "error", err)
		case added:
			result.SourcesAdded++
			log.Info("Added source", "source", source.Name)
		default:
			result.Skipped++
		}
	}

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		added, err := db.Users().CreateIfAbsent(ctx, &user)
		switch {
		case err != nil:
			result.Failed++
			log.Warn("Failed to add user", "user", user.Email, "error", err)
		case added:
			result.UsersAdded++
			log.Info("Added user", "user", user.Email)
		default:
			result.Skipped++
		}
	}

	return result, nil
}
