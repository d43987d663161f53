// Package main is the entry point for the SEER ingestion server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"seer/internal/api"
	"seer/internal/archive"
	"seer/internal/config"
	"seer/internal/crawl"
	"seer/internal/dedup"
	"seer/internal/extraction"
	"seer/internal/graph"
	"seer/internal/logging"
	"seer/internal/normalizer"
	"seer/internal/notify"
	"seer/internal/queue"
	"seer/internal/rules"
	"seer/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging)

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"queue_size", cfg.Queue.Size,
		"workers", cfg.Workers.Count,
		"extraction_configured", cfg.Extraction.APIKey != "",
		"archive_enabled", cfg.Archive.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Datastore
	st, err := store.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	// Pipeline components
	fetchQueue := queue.NewRingBuffer(cfg.Queue.Size)
	fetcher := crawl.NewHTTPFetcher(cfg.Crawler)
	extractor := extraction.NewClient(cfg.Extraction)
	deduper := dedup.New(cfg.Dedup)
	norm := normalizer.New(extractor, st, deduper)

	// Notification channels
	channels := []notify.Notifier{notify.NewLogChannel()}
	var kafkaChannel *notify.KafkaChannel
	if cfg.Notify.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
	}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		kafkaChannel = notify.NewKafkaChannel(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		channels = append(channels, kafkaChannel)
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.Timeout, channels...)

	engine := rules.NewEngine(st, dispatcher)
	builder := graph.NewBuilder(st)

	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		slog.Error("failed to initialize page archiver", "error", err)
		os.Exit(1)
	}

	seedRules(ctx, st)

	// Crawl service and worker pool
	service := crawl.NewService(cfg.Crawler, cfg.Workers, st, fetchQueue,
		fetcher, norm, engine, builder, archiver)
	service.Start(ctx)

	// HTTP server
	apiServer := api.NewServer(service, st, extractor, builder)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      apiServer.Handler(cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting new requests, then drain the pipeline.
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	fetchQueue.Close()
	service.Stop()
	cancel()

	if kafkaChannel != nil {
		if err := kafkaChannel.Close(); err != nil {
			slog.Error("kafka channel close error", "error", err)
		}
	}
	if err := deduper.Close(); err != nil {
		slog.Error("deduper close error", "error", err)
	}
	if err := st.Close(); err != nil {
		slog.Error("datastore close error", "error", err)
	}

	metrics := service.Metrics()
	slog.Info("shutdown complete",
		"units_processed", metrics.UnitsProcessed,
		"units_failed", metrics.UnitsFailed,
		"threats_found", metrics.ThreatsFound,
		"queue_dropped", metrics.Queue.Dropped,
	)
}

// seedRules loads alert rules from YAML seed files at startup. Rules that
// already exist by name are left untouched.
func seedRules(ctx context.Context, st *store.Store) {
	dir := os.Getenv("SEER_RULES_DIR")
	if dir == "" {
		dir = "configs/rules"
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read rules directory", "dir", dir, "error", err)
		}
		return
	}

	var created int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("failed to read rule seed file", "file", name, "error", err)
			continue
		}
		seeds, err := rules.ParseSeeds(data)
		if err != nil {
			slog.Warn("invalid rule seed file", "file", name, "error", err)
			continue
		}

		for _, seed := range seeds {
			rule, err := seed.ToRule()
			if err != nil {
				continue
			}
			err = st.CreateRule(ctx, rule)
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			if err != nil {
				slog.Warn("failed to seed rule", "name", rule.Name, "error", err)
				continue
			}
			created++
		}
	}

	if created > 0 {
		slog.Info("alert rules seeded", "dir", dir, "created", created)
	}
}
