package handlers

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"techdigest/internal/config"
	"techdigest/internal/pipeline"
)

// NewSeedCmd creates the seed command
func NewSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load feeds and subscribers from a YAML file",
		Long: `Insert the active rss_sources and the users listed in a newsletter config
file. Rows whose URL or email already exist are left untouched, so seeding
is safe to repeat.

Example:
  techdigest seed --file config/newsletter-config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cmd.OutOrStdout(), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "newsletter config file (default from pipeline.seed_file)")

	return cmd
}

func runSeed(ctx context.Context, w io.Writer, file string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if file == "" {
		file = cfg.Pipeline.SeedFile
	}

	nc, err := config.LoadNewsletterConfig(file)
	if err != nil {
		return err
	}
	if err := nc.Validate(); err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := pipeline.Seed(ctx, db, nc.SeedSources(), nc.SeedUsers(), log)
	if err != nil {
		return err
	}

	printSummary(w, "🌱 Seed "+file,
		field{"Sources added", result.SourcesAdded},
		field{"Users added", result.UsersAdded},
		field{"Already present", result.Skipped},
		field{"Invalid", count(result.Failed, true)},
	)
	return nil
}
