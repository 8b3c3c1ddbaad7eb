package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Import.BatchSize != 500 {
		t.Fatalf("batch size = %d, want 500", cfg.Import.BatchSize)
	}
	if cfg.FX.FiatTTL != 15*time.Minute || cfg.FX.CryptoTTL != 5*time.Minute {
		t.Fatalf("unexpected ttl: fiat=%v crypto=%v", cfg.FX.FiatTTL, cfg.FX.CryptoTTL)
	}
	if cfg.FX.AlertRatio != 0.2 {
		t.Fatalf("alert ratio = %v", cfg.FX.AlertRatio)
	}
	if cfg.Price.StaleAfter != 24*time.Hour {
		t.Fatalf("stale after = %v", cfg.Price.StaleAfter)
	}
	if cfg.Providers == nil || cfg.Retailers == nil {
		t.Fatalf("maps must be initialized")
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  dsn: postgres://yaml
import:
  batch_size: 50
fx:
  crypto_codes: [btc, " eth "]
providers:
  exchangerate-api:
    base_url: https://forex.example
    api_key: from-yaml
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("FOREX_API_KEY", "from-env")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://env" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Import.BatchSize != 50 {
		t.Fatalf("batch size = %d", cfg.Import.BatchSize)
	}
	if got := cfg.Providers["exchangerate-api"]; got.APIKey != "from-env" || got.BaseURL != "https://forex.example" {
		t.Fatalf("provider cfg = %+v", got)
	}
	if cfg.FX.CryptoCodes[0] != "BTC" || cfg.FX.CryptoCodes[1] != "ETH" {
		t.Fatalf("crypto codes = %v", cfg.FX.CryptoCodes)
	}
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [::"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}
