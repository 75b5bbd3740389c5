package main

import (
	"context"
	"errors"
	"net/http"

	"species-catalog/internal/database"
	"species-catalog/internal/server"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveInMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the species catalog HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		log.Info("Starting species catalog API",
			zap.String("env", cfg.Server.Env),
			zap.String("port", cfg.Server.Port),
			zap.Bool("in_memory", serveInMemory),
		)

		var dbService database.Service
		if !serveInMemory {
			dbService, err = openDatabase(cfg, log)
			if err != nil {
				log.Error("Failed to prepare database", zap.Error(err))
				return err
			}
		}

		var redisClient *redis.Client
		if cfg.RateLimit.Enabled {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				// the limiter fails open, requests still go through
				log.Warn("Redis unreachable, rate limiting is degraded", zap.Error(err))
			}
		}

		srv, err := server.NewServer(cfg, log, dbService, redisClient)
		if err != nil {
			return err
		}

		done := make(chan bool, 1)
		go gracefulShutdown(srv, log, done)

		log.Info("Server listening", zap.String("addr", srv.Addr))

		err = srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}

		<-done
		log.Info("Graceful shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveInMemory, "in-memory", false, "keep species in process memory instead of postgres")
}
