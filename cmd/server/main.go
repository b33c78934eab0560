package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"lexaudit/internal/artifact"
	"lexaudit/internal/export"
	"lexaudit/internal/pipeline"
	"lexaudit/internal/platform/config"
	"lexaudit/internal/platform/httpserver"
	"lexaudit/internal/platform/logger"
	"lexaudit/internal/platform/metrics"
	platformredis "lexaudit/internal/platform/redis"
	"lexaudit/internal/receipt"
	"lexaudit/internal/rules"
	httptransport "lexaudit/internal/transport/http"
	"lexaudit/pkg/platform/audit"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the stage packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	store, cleanupStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("artifact store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanupStore()

	events := audit.NewInMemoryStore()
	publisherOpts := []audit.Option{}
	if cfg.Kafka.Brokers != "" {
		sink, err := audit.NewKafkaSink(ctx, strings.Split(cfg.Kafka.Brokers, ","), cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		publisherOpts = append(publisherOpts, audit.WithSink(sink))
	}
	publisher := audit.NewPublisher(events, log, publisherOpts...)

	m := metrics.New()
	loader := rules.NewLoader(os.DirFS(cfg.RulesDir))

	handler := httptransport.NewHandler(
		pipeline.New(store, loader, publisher, m, log),
		store,
		export.NewService(store, log),
		receipt.NewIssuer(cfg.ReceiptSigningKey),
		events,
		publisher,
		log,
	)

	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	go func() {
		log.Info("lexaudit listening", "addr", cfg.Addr, "rules_dir", cfg.RulesDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("lexaudit stopped")
}

// buildStore selects the artifact backend: Postgres when a DSN is set, Redis
// when a URL is set, in-memory otherwise.
func buildStore(ctx context.Context, cfg config.Config) (artifact.Store, func(), error) {
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store := artifact.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	}

	if cfg.Redis.URL != "" {
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return artifact.NewRedisStore(client.Client), func() { client.Close() }, nil
	}

	return artifact.NewInMemoryStore(), func() {}, nil
}
