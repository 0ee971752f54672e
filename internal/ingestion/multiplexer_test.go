package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fluentfuture/leadscout/internal/metrics"
	"github.com/fluentfuture/leadscout/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCollector(t *testing.T) *metrics.Collector {
	t.Helper()
	c, err := metrics.NewCollector()
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c
}

// fixedStream emits the given items once, then blocks until cancellation.
func fixedStream(name string, items []models.ContentItem) Stream {
	return Stream{
		Name: name,
		Run: func(ctx context.Context, out chan<- models.ContentItem) error {
			for _, item := range items {
				select {
				case out <- item:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}
}

func TestRun_MergesBothStreams(t *testing.T) {
	posts := []models.ContentItem{
		{Kind: models.KindPost, Author: "a"},
		{Kind: models.KindPost, Author: "b"},
	}
	comments := []models.ContentItem{
		{Kind: models.KindComment, Author: "c"},
	}

	var mu sync.Mutex
	seen := make(map[string]models.ContentKind)
	done := make(chan struct{})

	handler := func(ctx context.Context, item models.ContentItem) {
		mu.Lock()
		seen[item.Author] = item.Kind
		if len(seen) == 3 {
			close(done)
		}
		mu.Unlock()
	}

	m := NewMultiplexer(
		[]Stream{fixedStream("posts", posts), fixedStream("comments", comments)},
		handler,
		Config{QueueSize: 8},
		testCollector(t),
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for items")
	}

	cancel()
	<-errCh

	mu.Lock()
	defer mu.Unlock()
	if seen["a"] != models.KindPost || seen["c"] != models.KindComment {
		t.Errorf("unexpected merged items: %v", seen)
	}
}

func TestRun_StreamOrderPreservedPerProducer(t *testing.T) {
	items := []models.ContentItem{
		{Kind: models.KindPost, Author: "first"},
		{Kind: models.KindPost, Author: "second"},
		{Kind: models.KindPost, Author: "third"},
	}

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	handler := func(ctx context.Context, item models.ContentItem) {
		mu.Lock()
		order = append(order, item.Author)
		if len(order) == 3 {
			close(done)
		}
		mu.Unlock()
	}

	m := NewMultiplexer(
		[]Stream{fixedStream("posts", items)},
		handler,
		Config{QueueSize: 8},
		testCollector(t),
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for items")
	}
	cancel()
	<-errCh

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"first", "second", "third"} {
		if order[i] != want {
			t.Fatalf("arrival order not preserved: %v", order)
		}
	}
}

func TestRun_ProducerReconnectsAfterFailure(t *testing.T) {
	var mu sync.Mutex
	runs := 0

	flaky := Stream{
		Name: "posts",
		Run: func(ctx context.Context, out chan<- models.ContentItem) error {
			mu.Lock()
			runs++
			attempt := runs
			mu.Unlock()

			if attempt == 1 {
				return errors.New("upstream reset")
			}

			select {
			case out <- models.ContentItem{Kind: models.KindPost, Author: "after-reconnect"}:
			case <-ctx.Done():
				return ctx.Err()
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	done := make(chan struct{})
	handler := func(ctx context.Context, item models.ContentItem) {
		if item.Author == "after-reconnect" {
			close(done)
		}
	}

	m := NewMultiplexer(
		[]Stream{flaky},
		handler,
		Config{
			QueueSize: 8,
			ReconnectPolicy: RetryPolicy{
				MaxRetries:     3,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     10 * time.Millisecond,
				BackoffFactor:  2.0,
			},
		},
		testCollector(t),
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not reconnect")
	}
	cancel()
	<-errCh
}

func TestRun_CancellationStopsPromptly(t *testing.T) {
	blocking := Stream{
		Name: "posts",
		Run: func(ctx context.Context, out chan<- models.ContentItem) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	m := NewMultiplexer(
		[]Stream{blocking},
		func(ctx context.Context, item models.ContentItem) {},
		Config{QueueSize: 8},
		testCollector(t),
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("multiplexer did not stop after cancellation")
	}
}

func TestRun_CountsProcessedItems(t *testing.T) {
	items := []models.ContentItem{
		{Kind: models.KindPost, Author: "a"},
		{Kind: models.KindComment, Author: "b"},
	}

	collector := testCollector(t)
	done := make(chan struct{})
	var handled int
	var mu sync.Mutex

	handler := func(ctx context.Context, item models.ContentItem) {
		mu.Lock()
		handled++
		if handled == 2 {
			close(done)
		}
		mu.Unlock()
	}

	m := NewMultiplexer(
		[]Stream{fixedStream("mixed", items)},
		handler,
		Config{QueueSize: 8},
		collector,
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	cancel()
	<-errCh

	s := collector.Snapshot()
	if s.Processed != 2 || s.Posts != 1 || s.Comments != 1 {
		t.Errorf("processed=%d posts=%d comments=%d", s.Processed, s.Posts, s.Comments)
	}
}
