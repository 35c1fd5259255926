package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boblangley/meeting-optimizer/internal/canceller"
	"github.com/boblangley/meeting-optimizer/internal/runner"
)

// ==================== Logging Tests ====================

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCriticalLevelRendering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "info"))

	logger.Log(context.Background(), canceller.LevelCritical, "INCOMPLETE cancellation")
	logger.Error("plain error")

	out := buf.String()
	if !strings.Contains(out, "level=CRITICAL") {
		t.Errorf("critical record not rendered as CRITICAL: %q", out)
	}
	if !strings.Contains(out, "level=ERROR msg=\"plain error\"") {
		t.Errorf("error record changed: %q", out)
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optimizer.log")
	logger, closeLog, err := newLogger("debug", path)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	logger.Debug("hello file")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("log file = %q", data)
	}
}

// ==================== Command Tests ====================

func TestLocalAddr(t *testing.T) {
	tests := map[string]string{
		":8000":          "localhost:8000",
		"8000":           "localhost:8000",
		"127.0.0.1:9000": "127.0.0.1:9000",
	}
	for in, want := range tests {
		if got := localAddr(in); got != want {
			t.Errorf("localAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	root := (&app{}).rootCmd()
	for _, name := range []string{"run", "check", "watch", "serve", "auth", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	run, _, _ := root.Find([]string{"run"})
	for _, flag := range []string{"dry-run", "force"} {
		if run.Flags().Lookup(flag) == nil {
			t.Errorf("run is missing --%s", flag)
		}
	}
}

func TestCheckCommandOnMarkdownFile(t *testing.T) {
	dir := t.TempDir()
	agendaPath := filepath.Join(dir, "agenda.md")
	os.WriteFile(agendaPath, []byte("## Feb 26, 2026\n\nTopics:\n\n- Budget\n"), 0644)
	cfgPath := filepath.Join(dir, "meeting-optimizer.yaml")
	os.WriteFile(cfgPath, []byte("log_file: \"\"\nlog_level: error\n"), 0644)

	root := (&app{}).rootCmd()
	root.SetArgs([]string{"--config", cfgPath, "check", "--date", "2026-02-26", agendaPath})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	root = (&app{}).rootCmd()
	root.SetArgs([]string{"--config", cfgPath, "check", filepath.Join(dir, "missing.md")})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("check on a missing file should fail")
	}
}

func TestPrintReportSkipped(t *testing.T) {
	// Smoke test: must not panic on an empty or skipped report.
	printReport(&runner.Report{Day: "2026-02-26", Skipped: true})
	printReport(&runner.Report{Day: "2026-02-26"})
}
