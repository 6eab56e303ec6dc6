package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if !cfg.IsHeadless() {
		t.Error("default config should be headless")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source != "openai" {
		t.Errorf("Source = %q, want defaults", cfg.Source)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{
		// json5 allows comments and trailing commas
		source: "anthropic",
		history_url: "https://status.anthropic.com/history",
		services: ["Claude.ai", "api.anthropic.com"],
		default_service: "claude.ai",
		headless: false,
		timeouts: { tooltip: "3s" },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Source != "anthropic" {
		t.Errorf("Source = %q, want anthropic", cfg.Source)
	}
	if diff := cmp.Diff([]string{"claude.ai", "api.anthropic.com"}, cfg.Services); diff != "" {
		t.Errorf("Services mismatch (-want +got):\n%s", diff)
	}
	if cfg.IsHeadless() {
		t.Error("headless: false was not applied")
	}
	if got := cfg.Timeouts.Tooltip.Std(); got != 3*time.Second {
		t.Errorf("Tooltip timeout = %v, want 3s", got)
	}
	// untouched fields keep their defaults
	if got := cfg.Timeouts.List.Std(); got != 5*time.Second {
		t.Errorf("List timeout = %v, want default 5s", got)
	}
	if cfg.Incident.Entry != Default().Incident.Entry {
		t.Errorf("Incident.Entry = %q, want default", cfg.Incident.Entry)
	}
}

func TestLoad_ZeroValuesApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{
		headless: false,
		timeouts: { settle: "0s", retry_delay: "0s" },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IsHeadless() {
		t.Error("headless: false was not applied")
	}
	if got := cfg.Timeouts.Settle.Std(); got != 0 {
		t.Errorf("Settle = %v, want 0s", got)
	}
	if got := cfg.Timeouts.RetryDelay.Std(); got != 0 {
		t.Errorf("RetryDelay = %v, want 0s", got)
	}
	if got := cfg.Timeouts.Tooltip.Std(); got != 10*time.Second {
		t.Errorf("Tooltip = %v, want default 10s", got)
	}
}

func TestLoad_LocalZeroOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{ headless: false, timeouts: { settle: "2s" } }`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ headless: true, timeouts: { settle: "0s" } }`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsHeadless() {
		t.Error("local headless: true was not applied")
	}
	if got := cfg.Timeouts.Settle.Std(); got != 0 {
		t.Errorf("Settle = %v, want 0s from local override", got)
	}
}

func TestConfig_Override(t *testing.T) {
	headless := false
	tests := []struct {
		name         string
		overlay      Config
		wantDir      string
		wantFormat   string
		wantHeadless bool
	}{
		{"empty overlay", Config{}, "data/raw", FormatCSV, true},
		{"strings", Config{DataDir: "out", Format: "XLSX"}, "out", FormatXLSX, true},
		{"headless false", Config{Headless: &headless}, "data/raw", FormatCSV, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.Override(tt.overlay); err != nil {
				t.Fatalf("Override() error = %v", err)
			}
			if cfg.DataDir != tt.wantDir {
				t.Errorf("DataDir = %q, want %q", cfg.DataDir, tt.wantDir)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.wantFormat)
			}
			if cfg.IsHeadless() != tt.wantHeadless {
				t.Errorf("IsHeadless() = %v, want %v", cfg.IsHeadless(), tt.wantHeadless)
			}
			// fields absent from the overlay keep their defaults
			if diff := cmp.Diff(Default().Timeouts, cfg.Timeouts); diff != "" {
				t.Errorf("Timeouts changed (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(Default().Services, cfg.Services); diff != "" {
				t.Errorf("Services changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_LocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{ data_dir: "out", format: "csv" }`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ format: "xlsx" }`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "out" {
		t.Errorf("DataDir = %q, want out", cfg.DataDir)
	}
	if cfg.Format != FormatXLSX {
		t.Errorf("Format = %q, want xlsx from local override", cfg.Format)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad syntax", `{ source: `},
		{"bad format", `{ format: "parquet" }`},
		{"default service not listed", `{ default_service: "sora" }`},
		{"bad duration", `{ timeouts: { list: "soon" } }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json5")
			writeFile(t, path, tt.content)

			if _, err := Load(path); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"config.json5", "config.local.json5"},
		{"/etc/sh/config.json", "/etc/sh/config.local.json"},
		{"config", "config.local"},
	}
	for _, tt := range tests {
		if got := LocalPath(tt.in); got != tt.want {
			t.Errorf("LocalPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasService(t *testing.T) {
	cfg := Default()
	if !cfg.HasService("Playground") {
		t.Error("HasService(Playground) = false, want true")
	}
	if cfg.HasService("sora") {
		t.Error("HasService(sora) = true, want false")
	}
}
