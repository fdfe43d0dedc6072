package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/zdziszkee/swift-registry/internal/configurations"
	"github.com/zdziszkee/swift-registry/internal/database"
	"github.com/zdziszkee/swift-registry/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "swiftcodes",
	Short:         "SWIFT/BIC code registry",
	Long:          "swiftcodes serves, imports and migrates the SWIFT/BIC code registry.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	rootCmd.AddCommand(newServeCmd(), newImportCmd(), newMigrateCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deps holds the dependencies every subcommand starts from.
type deps struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.Database
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logging.Sync(logger)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &deps{cfg: cfg, logger: logger, db: db}, nil
}

func (r *deps) close() {
	if err := r.db.Close(); err != nil {
		r.logger.Warn("failed to close database", zap.Error(err))
	}
	logging.Sync(r.logger)
}
