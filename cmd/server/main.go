package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/rpattn/reportql/internal/api"
	"github.com/rpattn/reportql/internal/cache"
	"github.com/rpattn/reportql/internal/config"
	"github.com/rpattn/reportql/internal/db"
	"github.com/rpattn/reportql/internal/executor"
	"github.com/rpattn/reportql/internal/middleware"
	"github.com/rpattn/reportql/internal/repository"
	"github.com/rpattn/reportql/internal/schema"
	"github.com/rpattn/reportql/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, cfg.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	registry := schema.NewRegistry()
	schemaRepo := repository.NewSchemaRepository(conn)
	if err := schemaRepo.LoadAll(ctx, registry); err != nil {
		logger.Fatal().Err(err).Msg("failed to load entity schemas")
	}

	reportRepo := repository.NewReportRepository(conn)
	source := executor.NewPostgresSource(conn.Pool, registry)
	resultCache := cache.New(cfg.CacheSize, cfg.CacheTTL)

	svc := service.New(reportRepo, registry, source, resultCache, logger)
	handler := api.NewHandler(svc, registry, logger, cfg.Debug)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      corsHandler.Handler(middleware.Logging(logger)(handler.Routes())),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("starting report server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
