package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/robfig/cron/v3"
	"log/slog"

	"github.com/fluentfuture/leadscout/internal/cascade"
	"github.com/fluentfuture/leadscout/internal/config"
	"github.com/fluentfuture/leadscout/internal/cooldown"
	"github.com/fluentfuture/leadscout/internal/gateway"
	"github.com/fluentfuture/leadscout/internal/ingestion"
	"github.com/fluentfuture/leadscout/internal/ledger"
	"github.com/fluentfuture/leadscout/internal/logging"
	"github.com/fluentfuture/leadscout/internal/metrics"
	"github.com/fluentfuture/leadscout/internal/models"
	"github.com/fluentfuture/leadscout/internal/notify"
	"github.com/fluentfuture/leadscout/internal/reddit"
	"github.com/fluentfuture/leadscout/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting leadscout monitor")

	profile, err := models.LoadProfile(cfg.ProfilePath)
	if err != nil {
		logger.Error("failed to load profile", "path", cfg.ProfilePath, "error", err)
		os.Exit(1)
	}
	logger.Info("profile loaded",
		"name", profile.Name,
		"subreddits", len(profile.Subforums),
		"topics", len(profile.Topics),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The classifier gateway precomputes topic embeddings; without it the
	// cascade cannot run, so a failure here is fatal.
	classifier, err := gateway.NewOpenAIClient(ctx, cfg.OpenAI, profile.Topics, profile.PositiveCriteria, profile.NegativeCriteria, logger)
	if err != nil {
		logger.Error("failed to init classifier gateway", "error", err)
		os.Exit(1)
	}

	idLedger, err := ledger.Load(filepath.Join(cfg.DataDir, "identified_leads.json"), logger)
	if err != nil {
		logger.Error("failed to load identity ledger", "error", err)
		os.Exit(1)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	tracker := cooldown.New(cfg.Pipeline.CooldownWindow, cfg.Pipeline.CooldownGrace)
	redditClient := reddit.NewClient(cfg.Reddit, logger)
	leadSink := sink.NewLeadSink(cfg.DataDir, profile.Name, logger)
	auditSink := sink.NewAuditSink(cfg.DataDir, profile.Name, profile.SaveFiltered, logger)

	var notifier cascade.Notifier
	if cfg.Pipeline.SendEmails {
		if cfg.Email.EmailConfigured() {
			notifier = notify.NewMailer(cfg.Email, profile, logger)
			logger.Info("email notifications enabled", "to", cfg.Email.Notification)
		} else {
			logger.Warn("SEND_EMAILS is on but email credentials are missing, notifications disabled")
		}
	}

	var responder *cascade.Responder
	if cfg.Pipeline.AutoRespond || cfg.Pipeline.SendDMs {
		if cfg.Reddit.Username == "" || cfg.Reddit.Password == "" {
			logger.Warn("outbound responses require REDDIT_USERNAME and REDDIT_PASSWORD, responses disabled")
		} else {
			responder = cascade.NewResponder(redditClient, profile, tracker,
				cfg.Pipeline.AutoRespond, cfg.Pipeline.SendDMs, collector, logger)
			logger.Info("outbound responses enabled",
				"auto_respond", cfg.Pipeline.AutoRespond,
				"send_dms", cfg.Pipeline.SendDMs,
			)
		}
	}

	pipeline := cascade.New(profile, classifier, idLedger, leadSink, auditSink, collector, responder, notifier, logger)

	subforums := profile.SubforumSet()
	multiplexer := ingestion.NewMultiplexer(
		[]ingestion.Stream{
			redditClient.StreamPosts(subforums),
			redditClient.StreamComments(subforums),
		},
		func(ctx context.Context, item models.ContentItem) {
			pipeline.Process(ctx, item)
		},
		ingestion.Config{
			QueueSize:      cfg.Pipeline.QueueSize,
			InterItemDelay: cfg.Pipeline.InterItemDelay,
			ReclaimEvery:   cfg.Pipeline.ReclaimEvery,
		},
		collector,
		logger,
	)

	// Hourly housekeeping: cooldown eviction plus a progress summary.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		removed := tracker.Evict()
		logger.Info("memory cleanup complete", "evicted", removed, "tracked", tracker.Size())
		collector.LogSummary(logger, "hourly summary")
	}); err != nil {
		logger.Error("failed to schedule housekeeping", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Metrics and health endpoints.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", collector.Handler())

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: mux,
	}
	go func() {
		logger.Info("http server listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	logger.Info("monitoring started",
		"subreddits", subforums,
		"auto_respond", cfg.Pipeline.AutoRespond,
		"send_dms", cfg.Pipeline.SendDMs,
		"send_emails", cfg.Pipeline.SendEmails,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- multiplexer.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("pipeline stopped unexpectedly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	collector.LogSummary(logger, "final summary")
	logger.Info("leadscout monitor stopped")
}
