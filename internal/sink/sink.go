// Package sink persists qualified leads and, optionally, cascade rejections
// as date-partitioned JSON files. Each day's leads land in
// <name>_leads_YYYY-MM-DD.json; the digest job later consumes and archives
// these partitions.
package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fluentfuture/leadscout/internal/models"
)

// archiveDir is the subdirectory partitions are moved to after a successful
// digest send.
const archiveDir = "archive"

// WriteError reports a persistence failure. The lead was already admitted
// when this is returned; only its durable record is missing.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("lead sink write failed for %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// LeadSink appends leads to daily partition files. Appends are
// read-modify-write: the whole partition is parsed, extended and rewritten,
// so each file is always a complete JSON array.
type LeadSink struct {
	mu     sync.Mutex
	dir    string
	name   string
	logger *slog.Logger
	now    func() time.Time
}

// NewLeadSink creates a sink writing under dir. The name (typically the
// profile name) prefixes every partition file.
func NewLeadSink(dir, name string, logger *slog.Logger) *LeadSink {
	return &LeadSink{
		dir:    dir,
		name:   name,
		logger: logger,
		now:    time.Now,
	}
}

// PathFor returns the partition file path for the given day.
func (s *LeadSink) PathFor(day time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_leads_%s.json", s.name, day.Format("2006-01-02")))
}

// Append adds the lead to today's partition.
func (s *LeadSink) Append(lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PathFor(s.now())

	leads, err := readPartition(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	leads = append(leads, lead)

	if err := writePartition(path, leads); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	s.logger.Info("lead saved", "path", path, "total_today", len(leads))
	return nil
}

// ReadPartition loads all leads from one partition file. A missing file
// yields an empty slice.
func (s *LeadSink) ReadPartition(path string) ([]models.Lead, error) {
	return readPartition(path)
}

// Pending lists unarchived partition files, oldest first. Today's partition
// is excluded: the monitor may still be appending to it, and archiving a
// partial day would split its leads across two digests.
func (s *LeadSink) Pending() ([]string, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("%s_leads_*.json", s.name))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	today := s.PathFor(s.now())
	pending := matches[:0]
	for _, m := range matches {
		if m != today {
			pending = append(pending, m)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// Archive moves a delivered partition into the archive subdirectory so the
// digest job will not pick it up again.
func (s *LeadSink) Archive(path string) error {
	dest := filepath.Join(s.dir, archiveDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	target := filepath.Join(dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}

	s.logger.Info("partition archived", "from", path, "to", target)
	return nil
}

func readPartition(path string) ([]models.Lead, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var leads []models.Lead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return leads, nil
}

func writePartition(path string, leads []models.Lead) error {
	data, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AuditSink records cascade rejections for threshold tuning. It is off by
// default and never fails the pipeline: write errors are logged and dropped.
type AuditSink struct {
	mu      sync.Mutex
	enabled bool
	dir     string
	name    string
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuditSink creates an audit sink. When enabled is false every Append is
// a no-op.
func NewAuditSink(dir, name string, enabled bool, logger *slog.Logger) *AuditSink {
	return &AuditSink{
		enabled: enabled,
		dir:     dir,
		name:    name,
		logger:  logger,
		now:     time.Now,
	}
}

// Append records one rejection in today's audit partition.
func (s *AuditSink) Append(ev models.FilteredEvent) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("unfiltered_%s_leads_%s.json", s.name, s.now().Format("2006-01-02")))

	var events []models.FilteredEvent
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &events); err != nil {
			s.logger.Warn("audit partition unreadable, starting over", "path", path, "error", err)
			events = nil
		}
	}

	events = append(events, ev)

	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		s.logger.Warn("audit event not saved", "error", err)
		return
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		s.logger.Warn("audit event not saved", "path", path, "error", err)
	}
}
