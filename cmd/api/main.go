package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"marginalia/api/internal/analysis"
	"marginalia/api/internal/app"
	"marginalia/api/internal/config"
	"marginalia/api/internal/logger"
	"marginalia/api/internal/metrics"
	"marginalia/api/internal/nipsa"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	log, err := logger.New(logger.Config{
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		ServiceName: "marginalia-api",
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, dialect, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	dataStore := store.NewSQLStore(db, dialect, log)
	migrations, err := store.Migrations(cfg.MigrationsDir)
	if err != nil {
		log.Fatal("migrations unavailable", zap.Error(err))
	}
	if err := dataStore.ApplyMigrations(ctx, migrations); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	} else {
		log.Warn("MEILI_URL not set, search index writes disabled")
	}
	var indexer search.Indexer
	if meiliClient != nil {
		indexer = meiliClient
	}
	searchService := search.NewService(indexer, analysis.New(cfg.URIDecodeDepth), log)

	var nipsaStore *nipsa.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		nipsaStore, err = nipsa.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer nipsaStore.Close()
	} else {
		log.Warn("REDIS_URL not set, shadow-ban lookups disabled")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	service := app.New(cfg, dataStore, nipsaStore, searchService, m, log)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("marginalia API listening", zap.String("addr", cfg.Addr), zap.String("database", dialect.String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	searchService.Wait()
}
