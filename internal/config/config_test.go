package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PROSA_DISCORD_TOKEN", "OPENROUTER_API_KEY", "OPENROUTER_MODEL",
		"HISTORY_LIMIT", "RAG_RESULTS", "PROSA_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Completion.BaseURL != DefaultCompletionBaseURL {
		t.Errorf("Completion.BaseURL = %q, want default", cfg.Completion.BaseURL)
	}
	if cfg.Bot.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want %d", cfg.Bot.HistoryLimit, DefaultHistoryLimit)
	}
	if cfg.Bot.RAGResults != DefaultRAGResults {
		t.Errorf("RAGResults = %d, want %d", cfg.Bot.RAGResults, DefaultRAGResults)
	}
	if cfg.Log.Level != slog.LevelInfo {
		t.Errorf("Log.Level = %v, want info", cfg.Log.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROSA_DISCORD_TOKEN", "tok-123")
	t.Setenv("HISTORY_LIMIT", "25")
	t.Setenv("PROSA_LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Discord.Token != "tok-123" {
		t.Errorf("Discord.Token = %q", cfg.Discord.Token)
	}
	if cfg.Bot.HistoryLimit != 25 {
		t.Errorf("HistoryLimit = %d, want 25", cfg.Bot.HistoryLimit)
	}
	if cfg.Log.Level != slog.LevelDebug {
		t.Errorf("Log.Level = %v, want debug", cfg.Log.Level)
	}
}

func TestLoadRejectsBadInts(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "not-a-number")
	t.Setenv("RAG_RESULTS", "-3")

	cfg := Load()

	if cfg.Bot.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want default on parse failure", cfg.Bot.HistoryLimit)
	}
	if cfg.Bot.RAGResults != DefaultRAGResults {
		t.Errorf("RAGResults = %d, want default for non-positive value", cfg.Bot.RAGResults)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("hello", "component", "test")

	if stderr.Len() == 0 {
		t.Error("expected text output on stderr writer")
	}

	var record map[string]any
	if err := json.Unmarshal(file.Bytes(), &record); err != nil {
		t.Fatalf("file sink is not JSON: %v", err)
	}
	if record["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", record["msg"])
	}
	if record["component"] != "test" {
		t.Errorf("component = %v, want test", record["component"])
	}
}
