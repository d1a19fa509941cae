package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Hard bounds of a similarity threshold, in percent.
const (
	ThresholdHardMin = 0.0
	ThresholdHardMax = 100.0
)

type Config struct {
	Database  DatabaseConfig
	Index     IndexConfig
	Extractor ExtractorConfig
	Threshold ThresholdConfig
	Search    SearchConfig
	Log       LogConfig
	Web       WebConfig
}

type DatabaseConfig struct {
	Driver       string // postgres, mariadb or sqlite (default sqlite)
	URL          string // PostgreSQL URL or MariaDB DSN
	SQLitePath   string // SQLite database file (default data/facesearch.db)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type IndexConfig struct {
	Dim            int           `yaml:"dim"`
	Kind           string        `yaml:"kind"`
	Dir            string        `yaml:"-"` // Directory for persisted artifacts (empty disables persistence)
	SyncInterval   time.Duration `yaml:"sync_interval"`
	RebuildTimeout time.Duration `yaml:"rebuild_timeout"`
}

type ExtractorConfig struct {
	URL     string        `yaml:"-"` // defaults to http://localhost:8000
	Timeout time.Duration `yaml:"timeout"`
}

type ThresholdConfig struct {
	Default float64 `yaml:"default"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

type LogConfig struct {
	Level  string // debug, info, warn, error (default info)
	Format string // console or json (default console)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins besides localhost
}

type fileDefaults struct {
	Threshold ThresholdConfig `yaml:"threshold"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Extractor ExtractorConfig `yaml:"extractor"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a finite float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration ("90s", "5m").
// A zero duration is accepted; invalid or negative values fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

// envString returns the environment variable or the default when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var defaults fileDefaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// Embedded file, so this only fails on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", "sqlite")),
			URL:          os.Getenv("DATABASE_URL"),
			SQLitePath:   envString("SQLITE_PATH", "data/facesearch.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Index: IndexConfig{
			Dim:            envInt("EMBED_DIM", defaults.Index.Dim),
			Kind:           strings.ToLower(envString("INDEX_KIND", defaults.Index.Kind)),
			Dir:            os.Getenv("INDEX_DIR"),
			SyncInterval:   envDuration("INDEX_SYNC_INTERVAL", defaults.Index.SyncInterval),
			RebuildTimeout: envDuration("INDEX_REBUILD_TIMEOUT", defaults.Index.RebuildTimeout),
		},
		Extractor: ExtractorConfig{
			URL:     os.Getenv("EXTRACTOR_URL"),
			Timeout: envDuration("EXTRACTOR_TIMEOUT", defaults.Extractor.Timeout),
		},
		Threshold: ThresholdConfig{
			Default: envFloat("THRESHOLD_DEFAULT", defaults.Threshold.Default),
			Min:     envFloat("THRESHOLD_MIN", defaults.Threshold.Min),
			Max:     envFloat("THRESHOLD_MAX", defaults.Threshold.Max),
		},
		Search: SearchConfig{
			DefaultTopK: envInt("SEARCH_DEFAULT_TOP_K", defaults.Search.DefaultTopK),
			MaxTopK:     envInt("SEARCH_MAX_TOP_K", defaults.Search.MaxTopK),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "console")),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}

// Validate checks cross-field constraints that env parsing alone cannot enforce.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case "postgres", "mariadb":
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the %s driver", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver))
	}

	if c.Index.Kind != "flat" && c.Index.Kind != "hnsw" {
		errs = append(errs, fmt.Errorf("unknown INDEX_KIND %q", c.Index.Kind))
	}

	t := c.Threshold
	if t.Min < ThresholdHardMin || t.Max > ThresholdHardMax || t.Min > t.Max {
		errs = append(errs, fmt.Errorf("threshold band [%g, %g] must lie within [%g, %g]",
			t.Min, t.Max, ThresholdHardMin, ThresholdHardMax))
	}
	if t.Default < t.Min || t.Default > t.Max {
		errs = append(errs, fmt.Errorf("default threshold %g is outside [%g, %g]", t.Default, t.Min, t.Max))
	}

	if c.Search.DefaultTopK > c.Search.MaxTopK {
		errs = append(errs, fmt.Errorf("SEARCH_DEFAULT_TOP_K %d exceeds SEARCH_MAX_TOP_K %d",
			c.Search.DefaultTopK, c.Search.MaxTopK))
	}

	return errors.Join(errs...)
}
