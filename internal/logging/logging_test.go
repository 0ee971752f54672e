package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/fluentfuture/leadscout/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{"json format", config.LoggingConfig{Level: slog.LevelInfo, Format: "json"}, false},
		{"text format", config.LoggingConfig{Level: slog.LevelDebug, Format: "text"}, false},
		{"unknown format", config.LoggingConfig{Level: slog.LevelInfo, Format: "logfmt"}, true},
		{"empty format", config.LoggingConfig{Level: slog.LevelInfo}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if logger == nil {
				t.Fatal("nil logger")
			}
		})
	}
}

func TestNewWithWriter_EmitsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, config.LoggingConfig{Level: slog.LevelInfo, Format: "json"})
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}

	logger.Info("lead found", "author", "learner42")

	out := buf.String()
	if !strings.Contains(out, `"msg":"lead found"`) || !strings.Contains(out, `"author":"learner42"`) {
		t.Errorf("unexpected record: %s", out)
	}
}

func TestNew_LevelRespected(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: slog.LevelWarn, Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be enabled at warn level")
	}
}
