package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"tgwatch/internal/api"
	"tgwatch/internal/bot"
	"tgwatch/internal/cache"
	"tgwatch/internal/config"
	"tgwatch/internal/dedup"
	"tgwatch/internal/delivery"
	"tgwatch/internal/extract"
	"tgwatch/internal/fetcher"
	"tgwatch/internal/filter"
	"tgwatch/internal/publisher"
	"tgwatch/internal/scheduler"
	"tgwatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	pages := cache.New(cfg.Cache.TTL, cfg.Cache.MaxSize)
	requests := fetcher.NewRequestStats()
	f := fetcher.New(fetcher.NewHTTPClient(), pages, requests, log)
	f.SetBaseURL(cfg.ChannelBaseURL)
	policy := fetcher.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Fetch.MaxAttempts
	policy.MaxElapsed = cfg.Fetch.MaxElapsed
	f.SetRetryPolicy(policy)

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, f, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	var transport delivery.Transport = b
	if cfg.Delivery.Transport == config.TransportAMQP {
		pub, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			RoutingKey: cfg.AMQP.RoutingKey,
			QueueName:  cfg.AMQP.Queue,
		}, log)
		if err != nil {
			log.Error("connect publisher", "error", err)
			os.Exit(1)
		}
		defer func() { _ = pub.Close() }()
		transport = pub
	}

	seen := dedup.New(store)
	queue := delivery.New(transport, seen, delivery.Options{
		BatchSize:       cfg.Queue.BatchSize,
		InterItemDelay:  cfg.Queue.ItemDelay,
		InterBatchDelay: cfg.Queue.BatchDelay,
		IdleInterval:    cfg.Queue.IdleInterval,
		Capacity:        cfg.Queue.Capacity,
	}, log)

	checker := scheduler.NewChecker(
		store,
		f,
		extract.New(log, extract.DefaultFormats()...),
		filter.NewAnalyzer(cfg.Scoring.Mode, cfg.Scoring.Threshold),
		seen,
		queue,
		log,
	)
	checker.SetMessageWindow(cfg.MessageWindow)
	checker.SetDefaultKeywords(cfg.DefaultKeywords)

	sched := scheduler.New(store, checker, seen, log)
	sched.SetTickInterval(cfg.CheckInterval)
	sched.SetRetention(cfg.Retention)

	b.SetChecker(checker)
	b.SetRuntime(requests, pages, queue)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot",
		"transport", cfg.Delivery.Transport,
		"scoring", cfg.Scoring.Mode,
		"check_interval", cfg.CheckInterval,
	)

	var wg sync.WaitGroup
	wg.Go(func() { queue.Run(ctx) })
	wg.Go(func() { sched.Run(ctx) })
	if cfg.HTTPAddr != "" {
		handler := api.NewHandler(store, requests, pages, queue)
		wg.Go(func() {
			if err := api.Serve(ctx, cfg.HTTPAddr, api.NewServer(handler, log), log); err != nil {
				log.Error("http server", "error", err)
			}
		})
	}

	b.Run(ctx)
	cancel()
	wg.Wait()

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
