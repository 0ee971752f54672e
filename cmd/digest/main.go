// The digest command sends the daily lead digest: it reads every unarchived
// lead partition, emails one digest per day, and archives partitions whose
// digest was delivered. Intended to run from cron once a day.
package main

import (
	"context"
	"os"

	"log/slog"

	"github.com/fluentfuture/leadscout/internal/config"
	"github.com/fluentfuture/leadscout/internal/digest"
	"github.com/fluentfuture/leadscout/internal/logging"
	"github.com/fluentfuture/leadscout/internal/models"
	"github.com/fluentfuture/leadscout/internal/notify"
	"github.com/fluentfuture/leadscout/internal/sink"
)

func main() {
	cfg, err := config.LoadDigest()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	profile, err := models.LoadProfile(cfg.ProfilePath)
	if err != nil {
		logger.Error("failed to load profile", "path", cfg.ProfilePath, "error", err)
		os.Exit(1)
	}

	logger.Info("starting daily digest", "profile", profile.Name, "data_dir", cfg.DataDir)

	leadSink := sink.NewLeadSink(cfg.DataDir, profile.Name, logger)
	mailer := notify.NewMailer(cfg.Email, profile, logger)
	job := digest.New(leadSink, mailer, logger)

	if err := job.Run(context.Background()); err != nil {
		logger.Error("digest run finished with failures", "error", err)
		os.Exit(1)
	}

	logger.Info("daily digest complete")
}
