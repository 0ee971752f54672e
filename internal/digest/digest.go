// Package digest implements the offline daily digest job: read every
// unarchived lead partition from a completed day, send one digest email per
// day, and archive the partition only after the send succeeds. A failed send
// leaves the partition in place, so delivery is at-least-once.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/fluentfuture/leadscout/internal/models"
	"github.com/fluentfuture/leadscout/internal/sink"
)

// Sender delivers one day's digest.
type Sender interface {
	SendDigest(ctx context.Context, leads []models.Lead, date string) error
}

var datePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// Job reads pending partitions and drives the sender.
type Job struct {
	sink   *sink.LeadSink
	sender Sender
	logger *slog.Logger
}

// New creates a digest job.
func New(leadSink *sink.LeadSink, sender Sender, logger *slog.Logger) *Job {
	return &Job{
		sink:   leadSink,
		sender: sender,
		logger: logger,
	}
}

// Run processes every pending partition, oldest first. Partitions that fail
// to send stay pending for the next run; Run returns an error only when at
// least one send failed.
func (j *Job) Run(ctx context.Context) error {
	pending, err := j.sink.Pending()
	if err != nil {
		return fmt.Errorf("list pending partitions: %w", err)
	}

	if len(pending) == 0 {
		j.logger.Info("no pending lead partitions, nothing to send")
		return nil
	}

	failures := 0
	for _, path := range pending {
		if err := j.processPartition(ctx, path); err != nil {
			j.logger.Warn("digest send failed, partition kept for retry", "path", path, "error", err)
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d digest(s) failed", failures, len(pending))
	}
	return nil
}

func (j *Job) processPartition(ctx context.Context, path string) error {
	leads, err := j.sink.ReadPartition(path)
	if err != nil {
		return fmt.Errorf("read partition: %w", err)
	}

	date := dateFromPath(path)
	j.logger.Info("sending digest", "date", date, "leads", len(leads))

	if err := j.sender.SendDigest(ctx, leads, date); err != nil {
		return err
	}

	// Archive only after a confirmed send; a crash between send and archive
	// causes a duplicate digest, never a lost one.
	if err := j.sink.Archive(path); err != nil {
		return fmt.Errorf("archive after send: %w", err)
	}
	return nil
}

// dateFromPath extracts the partition's date from its filename.
func dateFromPath(path string) string {
	if match := datePattern.FindString(filepath.Base(path)); match != "" {
		return match
	}
	return "unknown"
}
