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
	"link-shortener/pkg/preview"
	"link-shortener/pkg/service"
	"link-shortener/pkg/storage"
	"link-shortener/pkg/tasks"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// The redirect binary serves only the hot path: cache-aside resolution plus
// the click pipeline. CRUD, analytics, and the sweeper live in cmd/api.
func main() {
	cfg := config.Load()
	logger := logging.NewLogger(logging.LogLevel(cfg.LogLevel))

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	linkCache := cache.NewLinkCache(redisClient)
	linkStorage := storage.NewPostgresLinkStorage(pool)

	previewClient := preview.NewClient(cfg.PreviewServiceURL, cfg.PreviewTimeout)
	geoClient := geoip.NewClient(cfg.GeoIPServiceURL, cfg.GeoIPTimeout)

	executor := tasks.NewExecutor(linkStorage, linkStorage, previewClient, geoClient, logger)
	queue := tasks.NewQueue(cfg.QueueSize, cfg.WorkerCount, executor, logger)
	defer queue.Shutdown()

	linkService := service.NewLinkService(linkStorage, linkCache, queue, logger)
	handler := httphandler.NewHandler(linkService, nil, cfg.BaseURL, logger)

	r := chi.NewRouter()
	r.Get("/health", handler.HealthCheck)
	r.Get("/r/{code}", handler.Redirect)

	log.Println("Starting redirect server on " + cfg.RedirectAddr)
	log.Fatal(stdhttp.ListenAndServe(cfg.RedirectAddr, r))
}
