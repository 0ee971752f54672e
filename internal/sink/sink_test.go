package sink

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fluentfuture/leadscout/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 7, 10, 14, 0, 0, 0, time.UTC)
	}
}

func TestAppend_CreatesAndExtendsPartition(t *testing.T) {
	dir := t.TempDir()
	s := NewLeadSink(dir, "english", testLogger())
	s.now = fixedClock()

	first := models.Lead{ID: "a", Author: "learner42", BestTopic: "practice speaking"}
	second := models.Lead{ID: "b", Author: "other"}

	if err := s.Append(first); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := s.Append(second); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	path := filepath.Join(dir, "english_leads_2025-07-10.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}

	var leads []models.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		t.Fatalf("parse partition: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	if leads[0].Author != "learner42" || leads[1].Author != "other" {
		t.Errorf("append order not preserved: %+v", leads)
	}
}

func TestAppend_WriteError(t *testing.T) {
	s := NewLeadSink(filepath.Join(t.TempDir(), "missing-subdir"), "english", testLogger())
	s.now = fixedClock()

	err := s.Append(models.Lead{ID: "a"})
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
}

func TestPending_SortedAndExcludesArchive(t *testing.T) {
	dir := t.TempDir()
	s := NewLeadSink(dir, "english", testLogger())

	for _, name := range []string{
		"english_leads_2025-07-09.json",
		"english_leads_2025-07-08.json",
		"unfiltered_english_leads_2025-07-09.json",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}

	if len(pending) != 2 {
		t.Fatalf("expected 2 partitions, got %v", pending)
	}
	if filepath.Base(pending[0]) != "english_leads_2025-07-08.json" {
		t.Errorf("partitions should be oldest first, got %v", pending)
	}
}

func TestPending_ExcludesTodayPartition(t *testing.T) {
	dir := t.TempDir()
	s := NewLeadSink(dir, "english", testLogger())
	s.now = fixedClock()

	for _, name := range []string{
		"english_leads_2025-07-09.json",
		"english_leads_2025-07-10.json", // today per the fixed clock
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}

	if len(pending) != 1 || filepath.Base(pending[0]) != "english_leads_2025-07-09.json" {
		t.Errorf("today's partition must stay out of pending, got %v", pending)
	}
}

func TestArchive_RemovesFromPending(t *testing.T) {
	dir := t.TempDir()
	s := NewLeadSink(dir, "english", testLogger())

	path := filepath.Join(dir, "english_leads_2025-07-09.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := s.Archive(path); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("archived partition still pending: %v", pending)
	}

	if _, err := os.Stat(filepath.Join(dir, archiveDir, "english_leads_2025-07-09.json")); err != nil {
		t.Errorf("archived file missing: %v", err)
	}
}

func TestReadPartition_MissingFileIsEmpty(t *testing.T) {
	s := NewLeadSink(t.TempDir(), "english", testLogger())

	leads, err := s.ReadPartition(filepath.Join(s.dir, "english_leads_2025-01-01.json"))
	if err != nil {
		t.Fatalf("ReadPartition: %v", err)
	}
	if len(leads) != 0 {
		t.Errorf("expected no leads, got %d", len(leads))
	}
}

func TestAuditSink_DisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditSink(dir, "english", false, testLogger())

	a.Append(models.FilteredEvent{Author: "x", Reason: models.ReasonNoIntent})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("disabled audit sink wrote files: %v", entries)
	}
}

func TestAuditSink_AppendsEvents(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditSink(dir, "english", true, testLogger())
	a.now = fixedClock()

	a.Append(models.FilteredEvent{Author: "x", Reason: models.ReasonNoIntent})
	a.Append(models.FilteredEvent{Author: "y", Reason: models.ReasonLowSimilarity, SimilarityScore: 0.21})

	data, err := os.ReadFile(filepath.Join(dir, "unfiltered_english_leads_2025-07-10.json"))
	if err != nil {
		t.Fatalf("read audit partition: %v", err)
	}

	var events []models.FilteredEvent
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("parse audit partition: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Reason != models.ReasonLowSimilarity {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}
