package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"species-catalog/internal/config"
	"species-catalog/internal/database"
	"species-catalog/internal/logger"
	"species-catalog/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "species-catalog",
	Short:         "Species catalog API for the farming advisory app",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

// setup loads configuration and builds the logger shared by every command
func setup() (*config.Config, *zap.Logger, error) {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}

// openDatabase connects to postgres and brings the schema up to date
func openDatabase(cfg *config.Config, log *zap.Logger) (database.Service, error) {
	dbService, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}

	health, err := dbService.Health(context.Background())
	log.Info("Database health check", zap.Any("health", health))
	if err != nil {
		dbService.Close()
		return nil, err
	}

	if err := database.RunMigrations(dbService.DB(), log); err != nil {
		dbService.Close()
		return nil, err
	}

	return dbService, nil
}

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// In-flight requests get 30 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close server resources
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	done <- true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// configuration may not have loaded, so log from the environment
		log := logger.NewWithDefaults()
		log.Error("Command failed", zap.String("command", strings.Join(os.Args[1:], " ")), zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}
