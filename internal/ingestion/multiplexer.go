// Package ingestion merges the platform's post and comment streams into one
// bounded work queue consumed by a single cascade worker. The single-consumer
// model is what makes the admission gate race-free: IsKnown and Record are
// never interleaved across items.
package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fluentfuture/leadscout/internal/metrics"
	"github.com/fluentfuture/leadscout/internal/models"
)

// Stream is one producer feeding the multiplexer. Run must emit items until
// the upstream disconnects (return an error) or ctx is cancelled (return
// ctx.Err()). The multiplexer reconnects on error; items are only ever
// enqueued, never processed, on the producer goroutine.
type Stream struct {
	Name string
	Run  func(ctx context.Context, out chan<- models.ContentItem) error
}

// Handler processes one dequeued item.
type Handler func(ctx context.Context, item models.ContentItem)

// Config tunes the multiplexer.
type Config struct {
	// QueueSize bounds the work queue; full queue applies backpressure to
	// the producers.
	QueueSize int

	// InterItemDelay is the minimum spacing between consumed items.
	InterItemDelay time.Duration

	// ReclaimEvery forces a garbage collection after this many consumed
	// items. Zero disables forced reclamation.
	ReclaimEvery int

	// ReconnectPolicy governs producer reconnects after upstream failures.
	ReconnectPolicy RetryPolicy
}

// Multiplexer owns the producer goroutines, the queue and the consumer loop.
type Multiplexer struct {
	streams []Stream
	handler Handler
	config  Config
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewMultiplexer wires streams to a handler.
func NewMultiplexer(streams []Stream, handler Handler, cfg Config, collector *metrics.Collector, logger *slog.Logger) *Multiplexer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Multiplexer{
		streams: streams,
		handler: handler,
		config:  cfg,
		metrics: collector,
		logger:  logger,
	}
}

// Run starts every producer and consumes until ctx is cancelled. At most one
// in-flight item is lost on shutdown; nothing partial is flushed.
func (m *Multiplexer) Run(ctx context.Context) error {
	queue := make(chan models.ContentItem, m.config.QueueSize)

	var wg sync.WaitGroup
	for _, stream := range m.streams {
		wg.Add(1)
		go func(s Stream) {
			defer wg.Done()
			m.produce(ctx, s, queue)
		}(stream)
	}

	// Producers hold the only sends; once they are all done the consumer can
	// drain and exit.
	go func() {
		wg.Wait()
		close(queue)
	}()

	err := m.consume(ctx, queue)

	m.logger.Info("multiplexer stopped")
	return err
}

// produce runs one stream, reconnecting with backoff after each upstream
// failure. A failing producer never affects its sibling or the consumer.
func (m *Multiplexer) produce(ctx context.Context, s Stream, queue chan<- models.ContentItem) {
	policy := m.config.ReconnectPolicy
	if policy.BackoffFactor == 0 {
		policy = DefaultRetryPolicy()
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		m.logger.Info("producer connecting", "stream", s.Name, "attempt", attempt)
		err := s.Run(ctx, queue)

		if ctx.Err() != nil {
			return
		}

		backoff := calculateBackoff(policy, attempt)
		if attempt < policy.MaxRetries {
			attempt++
		}
		m.logger.Warn("producer stream interrupted, reconnecting",
			"stream", s.Name,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// consume is the single cascade worker. Items are spaced by the rate limiter
// so the platform and the paid capabilities are never hammered.
func (m *Multiplexer) consume(ctx context.Context, queue <-chan models.ContentItem) error {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if m.config.InterItemDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(m.config.InterItemDelay), 1)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case item, ok := <-queue:
			if !ok {
				return nil
			}

			if err := limiter.Wait(ctx); err != nil {
				return err
			}

			total, milestone := m.metrics.IncProcessed(item.Kind)
			if milestone {
				m.logger.Info("processing milestone", "items", total)
				m.metrics.LogSummary(m.logger, "progress summary")
			}

			m.handler(ctx, item)

			if m.config.ReclaimEvery > 0 && total%int64(m.config.ReclaimEvery) == 0 {
				runtime.GC()
				m.logger.Debug("forced memory reclamation", "items", total)
			}
		}
	}
}
