package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kgr/api/internal/config"
	"kgr/api/internal/logging"
	"kgr/api/internal/store"
)

// rootOptions holds the global flags. Empty values leave the environment
// configuration untouched.
type rootOptions struct {
	env      string
	logLevel string
}

func (o *rootOptions) config() config.Config {
	cfg := config.Load()
	if o.env != "" {
		cfg.Env = o.env
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg
}

func (o *rootOptions) setup() (config.Config, *zap.Logger, error) {
	cfg := o.config()
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "kgr-api",
		Short:         "KGR Archive article service",
		Long:          "Serves the KGR Archive API and offers the markup conversions it uses from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.env, "env", "", "environment name (overrides KGR_ENV)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides KGR_LOG_LEVEL)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newRenderCommand())
	cmd.AddCommand(newMarkdownCommand())
	cmd.AddCommand(newGraphCommand())
	cmd.AddCommand(newReindexCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

// readInput returns the named file, or stdin when no file is given or the
// name is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func writeLine(cmd *cobra.Command, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(cmd.OutOrStdout(), text)
	return err
}
