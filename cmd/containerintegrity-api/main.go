package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rendiffdev/containerintegrity/internal/api"
	"github.com/rendiffdev/containerintegrity/internal/config"
	"github.com/rendiffdev/containerintegrity/internal/database"
	"github.com/rendiffdev/containerintegrity/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	logger.Info().Msg("Starting containerintegrity API")

	db, err := database.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.DatabaseURL, "migrations", logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	apiRouter, err := api.NewRouter(cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build router")
	}
	router := apiRouter.SetupRoutes()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info().Int("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
