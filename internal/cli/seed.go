package cli

import (
	"exam-reviewer/internal/config"
	"exam-reviewer/internal/corpus"
	"exam-reviewer/internal/infra/postgres"
	"exam-reviewer/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSeedCmd upserts the embedded question corpus into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in question corpus into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := runMigrationsWithConfig(cmd.Context(), cfg, logger); err != nil {
				return err
			}
			c, err := corpus.Default()
			if err != nil {
				return err
			}
			db, err := openBunDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.NewSeeder(db).Seed(cmd.Context(), c)
			if err != nil {
				return err
			}
			logger.Info("corpus seeded", zap.Int("categories", len(c.Categories)), zap.Int("questions", n))
			return nil
		},
	}
}
