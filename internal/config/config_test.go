package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"EMBED_DIM", "INDEX_KIND", "THRESHOLD_DEFAULT", "THRESHOLD_MIN", "THRESHOLD_MAX",
		"DATABASE_DRIVER", "INDEX_SYNC_INTERVAL", "SEARCH_MAX_TOP_K"} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Index.Dim != 512 {
		t.Errorf("expected default dim 512, got %d", cfg.Index.Dim)
	}
	if cfg.Index.Kind != "flat" {
		t.Errorf("expected default index kind 'flat', got '%s'", cfg.Index.Kind)
	}
	if cfg.Index.SyncInterval != 10*time.Minute {
		t.Errorf("expected default sync interval 10m, got %s", cfg.Index.SyncInterval)
	}
	if cfg.Threshold.Default != 75 || cfg.Threshold.Min != 70 || cfg.Threshold.Max != 90 {
		t.Errorf("unexpected threshold defaults: %+v", cfg.Threshold)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got '%s'", cfg.Database.Driver)
	}
	if cfg.Search.DefaultTopK != 5 || cfg.Search.MaxTopK != 100 {
		t.Errorf("unexpected search defaults: %+v", cfg.Search)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_CustomDim(t *testing.T) {
	t.Setenv("EMBED_DIM", "128")

	cfg := Load()

	if cfg.Index.Dim != 128 {
		t.Errorf("expected dim 128, got %d", cfg.Index.Dim)
	}
}

func TestLoad_InvalidDimFallsBack(t *testing.T) {
	for _, v := range []string{"invalid", "-100", "0"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("EMBED_DIM", v)

			cfg := Load()

			if cfg.Index.Dim != 512 {
				t.Errorf("expected default dim 512 for %q, got %d", v, cfg.Index.Dim)
			}
		})
	}
}

func TestLoad_ThresholdOverrides(t *testing.T) {
	t.Setenv("THRESHOLD_DEFAULT", "80")
	t.Setenv("THRESHOLD_MIN", "0")
	t.Setenv("THRESHOLD_MAX", "NaN")

	cfg := Load()

	if cfg.Threshold.Default != 80 {
		t.Errorf("expected default 80, got %g", cfg.Threshold.Default)
	}
	if cfg.Threshold.Min != 0 {
		t.Errorf("expected min 0, got %g", cfg.Threshold.Min)
	}
	if cfg.Threshold.Max != 90 {
		t.Errorf("expected NaN to fall back to 90, got %g", cfg.Threshold.Max)
	}
}

func TestLoad_DurationOverrides(t *testing.T) {
	t.Setenv("INDEX_SYNC_INTERVAL", "0")
	t.Setenv("INDEX_REBUILD_TIMEOUT", "bogus")

	cfg := Load()

	if cfg.Index.SyncInterval != 0 {
		t.Errorf("expected sync interval disabled, got %s", cfg.Index.SyncInterval)
	}
	if cfg.Index.RebuildTimeout != 2*time.Minute {
		t.Errorf("expected default rebuild timeout, got %s", cfg.Index.RebuildTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres"; c.Database.URL = "" }, "DATABASE_URL"},
		{"mariadb without url", func(c *Config) { c.Database.Driver = "mariadb" }, "DATABASE_URL is required for the mariadb driver"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "unknown DATABASE_DRIVER"},
		{"unknown kind", func(c *Config) { c.Index.Kind = "ivf" }, "unknown INDEX_KIND"},
		{"band above 100", func(c *Config) { c.Threshold.Max = 120 }, "must lie within"},
		{"inverted band", func(c *Config) { c.Threshold.Min = 95 }, "must lie within"},
		{"default outside band", func(c *Config) { c.Threshold.Default = 50 }, "outside"},
		{"top k", func(c *Config) { c.Search.DefaultTopK = 500 }, "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database:  DatabaseConfig{Driver: "sqlite", SQLitePath: "x.db"},
				Index:     IndexConfig{Dim: 512, Kind: "flat"},
				Threshold: ThresholdConfig{Default: 75, Min: 70, Max: 90},
				Search:    SearchConfig{DefaultTopK: 5, MaxTopK: 100},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://faces.example.com, ,https://admin.example.com ")

	cfg := Load()

	want := []string{"https://faces.example.com", "https://admin.example.com"}
	if strings.Join(cfg.Web.AllowedOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("expected origins %v, got %v", want, cfg.Web.AllowedOrigins)
	}
}
