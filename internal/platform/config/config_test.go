package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadClampsBoundedValues(t *testing.T) {
	t.Setenv("REVIEWSYNC_VALUES_PAGE_SIZE", "1000")
	t.Setenv("REVIEWSYNC_AUTOSAVE_DELAY", "50ms")
	cfg := Load()
	if cfg.EmployeeValuesPageSize != 100 {
		t.Fatalf("expected page size clamped to 100, got %d", cfg.EmployeeValuesPageSize)
	}
	if cfg.DraftAutosaveDelay != 500*time.Millisecond {
		t.Fatalf("expected delay clamped to 500ms, got %v", cfg.DraftAutosaveDelay)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.EmployeeValuesPageSize != 20 || cfg.DraftAutosaveDelay != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestApplyFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewsync.yaml")
	content := "baseUrl: https://portal.example.com\nemployeeValuesPageSize: 3\ndraftAutosaveDelay: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Load()
	if err := cfg.ApplyFile(path); err != nil {
		t.Fatalf("apply file: %v", err)
	}
	if cfg.BaseURL != "https://portal.example.com" {
		t.Fatalf("expected base url from file, got %q", cfg.BaseURL)
	}
	if cfg.EmployeeValuesPageSize != 5 {
		t.Fatalf("expected page size clamped up to 5, got %d", cfg.EmployeeValuesPageSize)
	}
	if cfg.DraftAutosaveDelay != 5*time.Second {
		t.Fatalf("expected delay clamped down to 5s, got %v", cfg.DraftAutosaveDelay)
	}
}

func TestApplyFileMissingIsFine(t *testing.T) {
	cfg := Load()
	if err := cfg.ApplyFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
}

func TestValidateRequiresBaseURL(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure without base url")
	}
	cfg.DevServer = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dev server mode must not require base url: %v", err)
	}
}
