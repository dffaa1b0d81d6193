package main

import (
	"context"
	"log"
	stdhttp "net/http"

	"link-shortener/pkg/cache"
	"link-shortener/pkg/config"
	"link-shortener/pkg/geoip"
	httphandler "link-shortener/pkg/http"
	"link-shortener/pkg/logging"
	"link-shortener/pkg/middleware"
	"link-shortener/pkg/preview"
	"link-shortener/pkg/service"
	"link-shortener/pkg/storage"
	"link-shortener/pkg/tasks"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(logging.LogLevel(cfg.LogLevel))

	// DB connection
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	// Redis connection
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	// Cache
	linkCache := cache.NewLinkCache(redisClient)

	// Storage
	linkStorage := storage.NewPostgresLinkStorage(pool)

	// External service clients
	previewClient := preview.NewClient(cfg.PreviewServiceURL, cfg.PreviewTimeout)
	geoClient := geoip.NewClient(cfg.GeoIPServiceURL, cfg.GeoIPTimeout)

	// Async pipeline
	executor := tasks.NewExecutor(linkStorage, linkStorage, previewClient, geoClient, logger)
	queue := tasks.NewQueue(cfg.QueueSize, cfg.WorkerCount, executor, logger)
	defer queue.Shutdown()

	sweeper := tasks.NewSweeper(linkStorage, cfg.SweepInterval, logger)
	sweeper.Start()
	defer sweeper.Stop()

	// Services
	linkService := service.NewLinkService(linkStorage, linkCache, queue, logger)
	analyticsService := service.NewAnalyticsService(linkStorage, linkStorage)

	// Auth middleware
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)

	// Handler
	handler := httphandler.NewHandler(linkService, analyticsService, cfg.BaseURL, logger)

	// Router
	r := chi.NewRouter()
	httphandler.SetupRoutes(r, handler, auth)

	// Server
	log.Println("Starting API server on " + cfg.APIAddr)
	log.Fatal(stdhttp.ListenAndServe(cfg.APIAddr, r))
}
