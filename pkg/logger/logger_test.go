package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"tweetpull/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level json", cfg: &config.LoggingConfig{Level: "debug", Format: "json"}},
		{name: "invalid log level", cfg: &config.LoggingConfig{Level: "invalid"}, wantErr: true},
		{name: "file output", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestJSONConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithConsole(&config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newWithConsole() error = %v", err)
	}

	log.WithField("account", "nasa").InfoWithFields("page fetched", map[string]interface{}{
		"records": 20,
		"wait":    2 * time.Second,
	})

	output := buf.String()
	for _, want := range []string{`"message":"page fetched"`, `"account":"nasa"`, `"records":20`, `"app":"tweetpull"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %s", output, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithConsole(&config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newWithConsole() error = %v", err)
	}

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message not found in output")
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf)
	logger := &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}

	base := logger.WithField("field1", "value1")
	base.
		WithFields(map[string]interface{}{"field2": 2}).
		WithError(errors.New("boom")).
		Error("chained fields")

	output := buf.String()
	for _, want := range []string{`"field1":"value1"`, `"field2":2`, `"error":"boom"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %s", output, want)
		}
	}

	buf.Reset()
	base.Info("parent unchanged")
	if strings.Contains(buf.String(), "field2") {
		t.Error("child fields leaked into parent logger")
	}
}

func TestWithNilError(t *testing.T) {
	zlog := zerolog.Nop()
	logger := &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}

	if logger.WithError(nil) != Logger(logger) {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestTestLoggerCapturesFields(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("run_id", "abc").WithError(errors.New("x")).WarnWithFields("checkpoint unreadable", map[string]interface{}{"path": "out.parquet.checkpoint"})
	tl.Info("plain")

	msgs := tl.GetMessagesByLevel("WARN")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(msgs))
	}
	if msgs[0].Fields["run_id"] != "abc" || msgs[0].Fields["path"] != "out.parquet.checkpoint" {
		t.Errorf("unexpected fields %v", msgs[0].Fields)
	}
	if msgs[0].Error == nil {
		t.Error("expected captured error")
	}
	if !tl.HasMessage("plain") {
		t.Error("plain message not captured")
	}

	tl.Clear()
	if len(tl.GetMessages()) != 0 {
		t.Error("Clear() did not drop messages")
	}
}
