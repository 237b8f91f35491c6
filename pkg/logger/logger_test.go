package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewSetsLevelAndFormat(t *testing.T) {
	log := New(LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	if log.GetLevel().String() != "debug" {
		t.Fatalf("expected level debug, got %s", log.GetLevel())
	}
}

func TestNewFallsBackToInfoOnUnknownLevel(t *testing.T) {
	log := New(LoggingConfig{Level: "loud", Format: "text", Output: "stdout"})
	if log.GetLevel().String() != "info" {
		t.Fatalf("expected fallback level info, got %s", log.GetLevel())
	}
}

func TestNewCreatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "refreshmint.log")
	log := New(LoggingConfig{Level: "info", Format: "text", Output: "file", FilePath: path})
	log.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log file to contain data")
	}
}
