package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLineHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "document created",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tdocument created\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "receipt poll failed",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\treceipt poll failed\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "document shared",
			attrs:   []slog.Attr{slog.String("grantee", "77"), slog.Int("end", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tdocument shared\tgrantee=77\tend=42\n",
		},
		{
			name:    "with group attr",
			opID:    "op-1",
			level:   slog.LevelWarn,
			message: "nonce resynchronized",
			attrs:   []slog.Attr{slog.Group("nonce", slog.Int("stale", 3), slog.Int("next", 5))},
			want:    "2024-06-15T14:30:45Z\tWARN\top-1\tnonce resynchronized\tnonce.stale=3\tnonce.next=5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newLineHandler(&buf, tt.opID, slog.LevelDebug)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLineHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := newLineHandler(&buf, "op-1", slog.LevelDebug)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "gateway")}).WithGroup("req")

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "envelope accepted", 0)
	r.AddAttrs(slog.String("tx", "abc"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "\tcomponent=gateway") {
		t.Errorf("expected pre-set attr component=gateway, got: %q", got)
	}
	if !strings.Contains(got, "\treq.tx=abc") {
		t.Errorf("expected grouped record attr req.tx=abc, got: %q", got)
	}
	if len(h.attrs) != 0 || h.prefix != "" {
		t.Errorf("original handler modified: attrs=%v prefix=%q", h.attrs, h.prefix)
	}
}

func TestLineHandler_Enabled(t *testing.T) {
	h := newLineHandler(&bytes.Buffer{}, "op", slog.LevelInfo)
	tests := []struct {
		level slog.Level
		want  bool
	}{
		{slog.LevelDebug, false},
		{slog.LevelInfo, true},
		{slog.LevelWarn, true},
		{slog.LevelError, true},
	}
	for _, tt := range tests {
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op", slog.LevelInfo, nil)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("hello", "k", "v")
	logger.Debug("hidden")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "custody.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "\tINFO\ttest-op\thello\tk=v\n") {
		t.Errorf("log file = %q, want the info line", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("log file = %q, debug line should be filtered", got)
	}
}
