package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kgr/api/internal/app"
	"kgr/api/internal/autosave"
	"kgr/api/internal/config"
	"kgr/api/internal/export"
	"kgr/api/internal/history"
	"kgr/api/internal/markup"
	"kgr/api/internal/media"
	"kgr/api/internal/notify"
	"kgr/api/internal/search"
	"kgr/api/internal/store"
)

const sweepInterval = time.Minute

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir), logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}

	pg := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:    pg,
		History:  history.New(cfg.ReposDir, logger),
		Exporter: export.NewService(app.ExportSource(pg), markup.NewRenderer(), logger),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		drafts, err := autosave.NewRedisStore(cfg.RedisURL, cfg.DraftTTL)
		if err != nil {
			logger.Warn("redis unavailable, drafts and live notifications disabled", zap.Error(err))
		} else {
			defer drafts.Close()
			deps.Drafts = drafts
			deps.Hub = notify.NewHub(drafts.Client(), logger)
		}
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	deps.Search = search.NewMeiliService(meili, search.NewPgFTS(db), logger)

	if uploader := newUploader(ctx, cfg, logger); uploader != nil {
		deps.Uploader = uploader
	}

	service := app.NewService(cfg, deps, logger)
	go service.RunSweeper(ctx, sweepInterval)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("KGR API listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}

// newUploader returns nil when object storage is not configured or the
// client cannot be built; submissions with a thumbnail then fail.
func newUploader(ctx context.Context, cfg config.Config, logger *zap.Logger) *media.Uploader {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return nil
	}
	uploader, err := media.NewUploader(media.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MinioPublicURL,
		MaxBytes:  cfg.MaxThumbnailBytes,
	}, logger)
	if err != nil {
		logger.Warn("object storage disabled", zap.Error(err))
		return nil
	}
	bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := uploader.EnsureBucket(bucketCtx); err != nil {
		logger.Warn("thumbnail bucket not ready", zap.String("bucket", cfg.MinioBucket), zap.Error(err))
	}
	return uploader
}
