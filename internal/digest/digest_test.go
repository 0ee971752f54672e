package digest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fluentfuture/leadscout/internal/models"
	"github.com/fluentfuture/leadscout/internal/sink"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockSender struct {
	sent    map[string]int // date -> lead count
	failFor map[string]error
}

func newMockSender() *mockSender {
	return &mockSender{sent: make(map[string]int), failFor: make(map[string]error)}
}

func (m *mockSender) SendDigest(ctx context.Context, leads []models.Lead, date string) error {
	if err := m.failFor[date]; err != nil {
		return err
	}
	m.sent[date] = len(leads)
	return nil
}

func writePartition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRun_SendsAndArchives(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewLeadSink(dir, "english", testLogger())

	writePartition(t, dir, "english_leads_2025-07-09.json",
		`[{"id":"a","author":"learner42"},{"id":"b","author":"other"}]`)

	sender := newMockSender()
	job := New(s, sender, testLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sender.sent["2025-07-09"] != 2 {
		t.Errorf("sent = %v, want 2 leads for 2025-07-09", sender.sent)
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("sent partition should be archived, still pending: %v", pending)
	}
}

func TestRun_OlderPartitionsIncluded(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewLeadSink(dir, "english", testLogger())

	writePartition(t, dir, "english_leads_2025-07-08.json", `[{"id":"old"}]`)
	writePartition(t, dir, "english_leads_2025-07-09.json", `[{"id":"new"}]`)

	sender := newMockSender()
	job := New(s, sender, testLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Errorf("both days should be sent, got %v", sender.sent)
	}
}

func TestRun_FailedSendKeepsPartition(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewLeadSink(dir, "english", testLogger())

	writePartition(t, dir, "english_leads_2025-07-08.json", `[{"id":"a"}]`)
	writePartition(t, dir, "english_leads_2025-07-09.json", `[{"id":"b"}]`)

	sender := newMockSender()
	sender.failFor["2025-07-08"] = errors.New("smtp unavailable")
	job := New(s, sender, testLogger())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when a send fails")
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || filepath.Base(pending[0]) != "english_leads_2025-07-08.json" {
		t.Errorf("failed partition should stay pending, got %v", pending)
	}

	// The other day still went out.
	if sender.sent["2025-07-09"] != 1 {
		t.Errorf("unrelated partition should still be sent: %v", sender.sent)
	}
}

func TestRun_NothingPending(t *testing.T) {
	s := sink.NewLeadSink(t.TempDir(), "english", testLogger())
	job := New(s, newMockSender(), testLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("empty run should succeed: %v", err)
	}
}

func TestDateFromPath(t *testing.T) {
	if got := dateFromPath("/data/english_leads_2025-07-09.json"); got != "2025-07-09" {
		t.Errorf("dateFromPath = %s", got)
	}
	if got := dateFromPath("/data/english_leads.json"); got != "unknown" {
		t.Errorf("dateFromPath without date = %s", got)
	}
}
