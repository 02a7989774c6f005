package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kgr/api/internal/search"
)

func newReindexCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every published article to Meilisearch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if strings.TrimSpace(cfg.MeiliURL) == "" {
				return errors.New("MEILI_URL is not set")
			}
			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
			defer meili.Close()
			if !meili.Healthy() {
				return fmt.Errorf("meilisearch at %s is unavailable", cfg.MeiliURL)
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			pgfts := search.NewPgFTS(db)
			records, err := pgfts.LoadPublished(cmd.Context())
			if err != nil {
				return err
			}
			sent, err := search.NewMeiliService(meili, pgfts, logger).Reindex(records)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			logger.Info("reindex complete", zap.Int("articles", sent))
			return writeLine(cmd, fmt.Sprintf("indexed %d articles", sent))
		},
	}
}
