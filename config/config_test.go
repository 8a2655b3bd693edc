package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "connpass_api_key: test-key\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MonthsAhead != 2 {
		t.Errorf("MonthsAhead = %d, want 2", cfg.MonthsAhead)
	}
	if cfg.PopularThreshold != 50 {
		t.Errorf("PopularThreshold = %d, want 50", cfg.PopularThreshold)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.Schedule == "" || cfg.DBPath == "" || cfg.LogLevel == "" {
		t.Errorf("defaults missing: %+v", cfg)
	}
	if cfg.SpeakerColorID != "11" || cfg.PopularColorID != "5" {
		t.Errorf("color defaults = %q/%q", cfg.SpeakerColorID, cfg.PopularColorID)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
connpass_api_key: test-key
prefecture: fukuoka
keywords: [golang, kubernetes]
exclude_keywords: [book club]
popular_threshold: 30
llm_enabled: true
llm_provider: gemini
llm_api_key: llm-key
calendar_enabled: true
calendar_id: primary
timezone: UTC
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[0] != "golang" {
		t.Errorf("Keywords = %v", cfg.Keywords)
	}
	if cfg.PopularThreshold != 30 {
		t.Errorf("PopularThreshold = %d", cfg.PopularThreshold)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing api key", "prefecture: fukuoka\n"},
		{"llm without key", "connpass_api_key: k\nllm_enabled: true\n"},
		{"calendar without id", "connpass_api_key: k\ncalendar_enabled: true\n"},
		{"bad timezone", "connpass_api_key: k\ntimezone: Mars/Olympus\n"},
		{"months out of range", "connpass_api_key: k\nmonths_ahead: 20\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "connpass_api_key: from-file\n")

	t.Setenv("CONNPASS_API_KEY", "from-env")
	t.Setenv("EVENTSYNC_DB", "/tmp/override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ConnpassAPIKey != "from-env" {
		t.Errorf("ConnpassAPIKey = %q, want env override", cfg.ConnpassAPIKey)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
}

func TestMonths(t *testing.T) {
	cfg := &Config{MonthsAhead: 3, Timezone: "UTC"}
	now := time.Date(2026, 11, 15, 12, 0, 0, 0, time.UTC)

	got := cfg.Months(now)
	want := []string{"202611", "202612", "202701"}
	if len(got) != len(want) {
		t.Fatalf("Months = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Months[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
