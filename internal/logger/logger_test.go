package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	output := buf.String()
	if output == "" {
		t.Error("Expected log output, got empty string")
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestNewWithOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		logDebug  bool
		wantEmpty bool
	}{
		{name: "json info drops debug", opts: Options{Level: "info", JSON: true}, logDebug: true, wantEmpty: true},
		{name: "json debug keeps debug", opts: Options{Level: "debug", JSON: true}, logDebug: true, wantEmpty: false},
		{name: "console warn drops info", opts: Options{Level: "WARN"}, logDebug: false, wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.opts.Out = buf
			log := NewWithOptions(tt.opts)

			if tt.logDebug {
				log.Debug().Msg("detail")
			} else {
				log.Info().Msg("detail")
			}

			if got := buf.Len() == 0; got != tt.wantEmpty {
				t.Errorf("empty output = %v, want %v (output %q)", got, tt.wantEmpty, buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" Error ", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithContext(t *testing.T) {
	log := New()
	ctx := context.Background()

	ctxWithLogger := WithContext(ctx, log)

	if ctxWithLogger.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	testLog := NewWithWriter(buf)
	ctx := WithContext(context.Background(), testLog)

	retrievedLog := FromContext(ctx)
	retrievedLog.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	logWithFields := WithFields(log, map[string]interface{}{
		"client_key": "NAME-john smith",
		"stage":      "overview",
	})
	logWithFields.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "client_key") || !strings.Contains(output, "NAME-john smith") {
		t.Errorf("Expected output to contain client_key field, got: %s", output)
	}
	if !strings.Contains(output, "stage") || !strings.Contains(output, "overview") {
		t.Errorf("Expected output to contain stage field, got: %s", output)
	}
}

func TestWithDocument(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	ctx = WithDocument(ctx, "statement.txt", "run-1")
	l := FromContext(ctx)
	l.Info().Msg("analyzing")

	output := buf.String()
	if !strings.Contains(output, "statement.txt") || !strings.Contains(output, "run-1") {
		t.Errorf("Expected document fields in output, got: %s", output)
	}
}
