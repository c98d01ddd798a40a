package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/tosti")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DatabaseURL != "postgres://localhost/tosti" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Music.Timeout != 5*time.Second || cfg.Music.CacheTTL != 5*time.Second {
		t.Fatalf("unexpected music defaults: %+v", cfg.Music)
	}
	if cfg.Ledger.BatchSize != 50 || cfg.Ledger.Timeout != 5*time.Second {
		t.Fatalf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MUSIC_REQUESTS_PER_HOUR", "4")
	t.Setenv("LEDGER_TIMEOUT", "2s")
	t.Setenv("LEDGER_BATCH_SIZE", "0")
	t.Setenv("TIMEZONE", "Nowhere/Invalid")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.Music.RequestsPerHour != 4 || cfg.Ledger.Timeout != 2*time.Second {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.Ledger.BatchSize != 50 {
		t.Fatalf("expected batch size fallback, got %d", cfg.Ledger.BatchSize)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback for unknown timezone")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("MUSIC_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
