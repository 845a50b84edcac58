package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize slog logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	var buf bytes.Buffer
	if err := Init(WithBackend(BackendZap), WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize zap logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after zap initialization")
	}

	if err := Init(WithBackend("syslog")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoggerBasic(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "scan accepted", String("token_id", "534e2b03"), Int("value", 5000))

	out := buf.String()
	if !strings.Contains(out, "scan accepted") || !strings.Contains(out, "token_id=534e2b03") {
		t.Fatalf("unexpected log output: %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Fatalf("expected caller source in output: %q", out)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug should be logged after SetLevelString(debug), got %q", buf.String())
	}

	if err := SetLevelString("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoggerZapBackend(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithBackend(BackendZap), WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("delivery").Warn(context.Background(), "ack timed out", String("team_id", "001"), Error(errors.New("deadline")))
	if err := Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("zap output is not json: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "ack timed out" || entry["logger"] != "delivery" || entry["team_id"] != "001" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["error"] != "deadline" {
		t.Fatalf("expected error field, got %v", entry["error"])
	}
}

func TestLoggerNamed(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}

	ctx := context.Background()
	namedLogger.Info(ctx, "test message")
}
