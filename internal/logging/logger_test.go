package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHelpersBeforeInit(t *testing.T) {
	Logger = nil
	// must not panic
	Info("info")
	Debug("debug")
	Warn("warn")
	Error("error")
}

func TestInitWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn")
	defer func() { Logger = nil }()

	Info("hidden")
	Warn("shown", "batch", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "batch=3") {
		t.Errorf("expected warn line with keyvals:\n%s", out)
	}
}

func TestInitWriterBadLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "loud")
	defer func() { Logger = nil }()

	Info("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Error("unknown level should fall back to info")
	}
}

func TestInitFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Init(dir, "info"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Info("to file", "model", "jina")
	Close()
	Logger = nil

	files, err := filepath.Glob(filepath.Join(dir, "topicstream-*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing message:\n%s", data)
	}
}
