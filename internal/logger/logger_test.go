package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Envs(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker"} {
		if _, err := NewLogger(env); err != nil {
			t.Errorf("%s: %v", env, err)
		}
	}
	if _, err := NewLogger("staging"); err == nil {
		t.Error("expected error for unknown env")
	}
}

func TestNewLogger_Level(t *testing.T) {
	l, err := NewLogger("prod", WithLevel("warn"))
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if _, err := NewLogger("prod", WithLevel("loud")); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragstream.log")
	l, err := NewLogger("prod", WithLevel("info"), WithFile(FileConfig{Path: path, MaxSizeMB: 1}))
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hello file", zap.String("k", "v"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello file"`) || !strings.Contains(string(data), `"k":"v"`) {
		t.Errorf("log file = %s", data)
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))

	FromContext(ctx).Info("from ctx")
	if logs.Len() != 1 {
		t.Fatalf("logs = %d, want 1", logs.Len())
	}

	fallbackCore, fallbackLogs := observer.New(zap.InfoLevel)
	FromContextOr(context.Background(), zap.New(fallbackCore)).Info("fallback")
	if fallbackLogs.Len() != 1 {
		t.Error("fallback logger not used")
	}

	// no logger, no fallback: must not panic
	FromContext(context.Background()).Info("dropped")
}
