// Package ledger tracks identities that have already been converted into
// leads. It provides the at-most-once admission control the cascade relies
// on: once an identity is recorded it is never reprocessed, across restarts.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// WriteError reports a persistence failure. The in-memory state has already
// been updated when this is returned, so the durability guarantee is weakened
// for that entry until the next successful write.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write failed (at-most-once guarantee weakened until next write): %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Ledger is a persistent identity → first-qualified-timestamp map. Entries
// are never deleted. The file is rewritten in full on every insert:
// durability beats batching because a crash must not reopen an already
// qualified identity.
type Ledger struct {
	mu      sync.Mutex
	path    string
	entries map[string]time.Time
	logger  *slog.Logger
	now     func() time.Time
}

// Load opens the ledger file, or starts empty when the file does not exist.
func Load(path string, logger *slog.Logger) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: make(map[string]time.Time),
		logger:  logger,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("no ledger file found, starting fresh", "path", path)
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	raw := make(map[string]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}

	for identity, stamp := range raw {
		ts, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			// Tolerate a malformed timestamp rather than dropping the
			// identity: admission control matters more than the date.
			logger.Warn("malformed ledger timestamp", "identity", identity, "value", stamp)
			ts = l.now()
		}
		l.entries[identity] = ts
	}

	logger.Info("loaded identified leads", "count", len(l.entries), "path", path)
	return l, nil
}

// IsKnown reports whether the identity has already been qualified as a lead.
func (l *Ledger) IsKnown(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[identity]
	return ok
}

// Record inserts the identity with the current timestamp and persists the
// whole ledger. Idempotent: recording a known identity neither changes its
// timestamp nor rewrites the file.
func (l *Ledger) Record(identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[identity]; ok {
		return nil
	}

	l.entries[identity] = l.now()

	if err := l.persistLocked(); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// Size returns the number of recorded identities.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) persistLocked() error {
	raw := make(map[string]string, len(l.entries))
	for identity, ts := range l.entries {
		raw[identity] = ts.Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(l.path, data, 0o644)
}
