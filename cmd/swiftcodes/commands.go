package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	handler "github.com/zdziszkee/swift-registry/internal/api/handlers"
	"github.com/zdziszkee/swift-registry/internal/api/router"
	"github.com/zdziszkee/swift-registry/internal/cache"
	"github.com/zdziszkee/swift-registry/internal/importer"
	"github.com/zdziszkee/swift-registry/internal/metrics"
	repository "github.com/zdziszkee/swift-registry/internal/repositories"
	service "github.com/zdziszkee/swift-registry/internal/services"
	"github.com/zdziszkee/swift-registry/internal/sources"
)

const (
	importTimeout          = 5 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var loadFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			// Override config with the command line flag if provided
			if loadFile != "" {
				rt.cfg.Data.SwiftCodesFile = loadFile
				rt.cfg.Data.AutoLoad = true
			}
			return serve(ctx, rt)
		},
	}
	cmd.Flags().StringVar(&loadFile, "load", "", "SWIFT codes CSV to import before serving (path or s3://bucket/key)")
	return cmd
}

func serve(ctx context.Context, rt *deps) error {
	m := metrics.New()
	repo := repository.NewSQLSwiftRepository(rt.db)

	checks := map[string]handler.HealthChecker{"store": rt.db}
	opts := []service.Option{service.WithMetrics(m)}
	importOpts := []importer.Option{importer.WithMetrics(m)}

	redisCache, err := cache.New(ctx, rt.cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if redisCache != nil {
		defer redisCache.Close()
		opts = append(opts, service.WithCache(redisCache))
		importOpts = append(importOpts, importer.WithCache(redisCache))
		checks["cache"] = redisCache
		rt.logger.Info("response cache enabled", zap.Duration("ttl", rt.cfg.Cache.TTL))
	}

	if rt.cfg.Data.AutoLoad && rt.cfg.Data.SwiftCodesFile != "" {
		imp := importer.New(repo, sources.New(rt.cfg.Storage, rt.logger), rt.logger, importOpts...)

		loadCtx, cancel := context.WithTimeout(ctx, importTimeout)
		if _, err := imp.ImportFile(loadCtx, rt.cfg.Data.SwiftCodesFile); err != nil {
			rt.logger.Warn("failed to load SWIFT codes", zap.String("file", rt.cfg.Data.SwiftCodesFile), zap.Error(err))
		}
		cancel()
	}

	swiftService := service.NewSwiftService(repo, rt.logger, opts...)
	app := router.SetupRoutes(
		rt.cfg.Server,
		handler.NewSwiftHandler(swiftService, rt.logger),
		handler.NewHealthHandler(checks, rt.logger),
		m,
		rt.logger,
	)

	// Start server in a goroutine so we can handle graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("starting server", zap.String("address", rt.cfg.Server.Address))
		errCh <- app.Listen(rt.cfg.Server.Address, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := rt.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	rt.logger.Info("shutting down server", zap.Duration("timeout", timeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	rt.logger.Info("server exited")
	return nil
}

func newImportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import SWIFT codes from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if file == "" {
				file = rt.cfg.Data.SwiftCodesFile
			}
			if file == "" {
				return errors.New("no file given: use --file or data.swift_codes_file")
			}

			// A running server may share the cache; drop what this import changes.
			var opts []importer.Option
			redisCache, err := cache.New(ctx, rt.cfg.Cache)
			if err != nil {
				return fmt.Errorf("failed to initialize cache: %w", err)
			}
			if redisCache != nil {
				defer redisCache.Close()
				opts = append(opts, importer.WithCache(redisCache))
			}

			imp := importer.New(repository.NewSQLSwiftRepository(rt.db), sources.New(rt.cfg.Storage, rt.logger), rt.logger, opts...)
			result, err := imp.ImportFile(ctx, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "imported %d of %d rows (%d skipped, %.2f%%)\n",
				result.Imported, result.Total, result.Skipped, result.SuccessRate)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to import (path or s3://bucket/key)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the swift_codes table and its indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			rt.logger.Info("schema migrated", zap.String("table", rt.db.Table()))
			return nil
		},
	}
}
