package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"exam-reviewer/internal/config"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewer.log")
	logger, err := New(config.Log{Level: "debug", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("result saved")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"result saved"`) {
		t.Fatalf("expected JSON entry, got %q", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.Log{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
