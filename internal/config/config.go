// Package config loads the settings shared by every operational tool.
//
// Sources, lowest to highest precedence: struct defaults, YAML config files,
// the process environment (MATARESIT_ prefix). A local .env file is loaded
// into the environment first without overriding variables that are already
// set, and a few platform-standard names (SUPABASE_URL, DATABASE_URL, ...)
// are honoured when the prefixed variable is empty.
package config

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MATARESIT"

// Config holds the complete configuration of the tools.
type Config struct {
	Env          string          `env:"ENV" yaml:"env" default:"local" usage:"Name of the active environment (local, staging, production)"`
	DatabaseURL  string          `env:"DATABASE_URL" yaml:"database_url" usage:"PostgreSQL connection URL of the hosted database (or DATABASE_URL)"`
	APIKeyPepper string          `env:"API_KEY_PEPPER" yaml:"api_key_pepper" usage:"HMAC pepper used to hash API keys"`
	Supabase     SupabaseConfig  `yaml:"supabase"`
	API          APIConfig       `yaml:"api"`
	HTTP         HTTPConfig      `yaml:"http"`
	Migration    MigrationConfig `yaml:"migration"`
	Thumbnail    ThumbnailConfig `yaml:"thumbnail"`
}

// SupabaseConfig locates the backend platform and holds its credentials.
type SupabaseConfig struct {
	URL        string `env:"URL" yaml:"url" usage:"Project URL (or SUPABASE_URL)"`
	ServiceKey string `env:"SERVICE_KEY" yaml:"service_key" usage:"Service role key (or SUPABASE_SERVICE_ROLE_KEY)"`
	AnonKey    string `env:"ANON_KEY" yaml:"anon_key" usage:"Anonymous key (or SUPABASE_ANON_KEY)"`
}

// APIConfig configures the public receipts API client.
type APIConfig struct {
	BaseURL    string `env:"BASE_URL" yaml:"base_url" usage:"External API base URL; derived from the project URL when empty"`
	Key        string `env:"KEY" yaml:"key" usage:"External API key (mk_live_... or mk_test_...)"`
	MaxRetries int    `env:"MAX_RETRIES" yaml:"max_retries" default:"3" usage:"Attempts for rate-limited requests"`

	BatchPause   time.Duration `env:"BATCH_PAUSE" yaml:"batch_pause" default:"1s" usage:"Pause between bulk upload batches"`
	PollInterval time.Duration `env:"POLL_INTERVAL" yaml:"poll_interval" default:"2s" usage:"Processing status poll period for upload --wait"`
}

// HTTPConfig applies to every outbound HTTP client.
type HTTPConfig struct {
	Timeout time.Duration `env:"TIMEOUT" yaml:"timeout" default:"30s" usage:"Per-request timeout"`
}

// MigrationConfig controls the embedding backfill.
type MigrationConfig struct {
	BatchSize  int           `env:"BATCH_SIZE" yaml:"batch_size" default:"5" usage:"Receipts invoked concurrently per batch"`
	Delay      time.Duration `env:"DELAY" yaml:"delay" default:"2s" usage:"Pause between batches"`
	MaxRetries int           `env:"MAX_RETRIES" yaml:"max_retries" default:"2" usage:"Retries per receipt after the first attempt"`
	PageSize   int           `env:"PAGE_SIZE" yaml:"page_size" default:"500" usage:"Receipts read per database page"`
}

// ThumbnailConfig controls the thumbnail pipeline.
type ThumbnailConfig struct {
	Bucket      string `env:"BUCKET" yaml:"bucket" default:"receipt-images" usage:"Storage bucket for thumbnails"`
	MaxSide     int    `env:"MAX_SIDE" yaml:"max_side" default:"400" usage:"Longest thumbnail side in pixels"`
	Quality     int    `env:"QUALITY" yaml:"quality" default:"80" usage:"JPEG quality"`
	Concurrency int    `env:"CONCURRENCY" yaml:"concurrency" default:"3" usage:"Receipts processed concurrently"`
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// EnvFiles are dotenv files loaded before the environment is read.
	// Missing files are skipped.
	EnvFiles []string
	// ConfigFiles are YAML files; missing files are skipped.
	ConfigFiles []string
}

// DefaultLoadOptions reads .env from the working directory and the usual
// YAML locations.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		EnvFiles:    []string{".env"},
		ConfigFiles: []string{"mataresit.yaml", "/etc/mataresit/config.yaml"},
	}
}

// Load reads the configuration. It does not validate required settings;
// commands call Require with what they need.
func Load(opts LoadOptions) (*Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        EnvPrefix,
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            opts.ConfigFiles,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	return &cfg, nil
}

// applyPlatformDefaults fills empty settings from the variable names the
// hosting platform and its CLI export.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, n := range names {
			if v := strings.TrimSpace(os.Getenv(n)); v != "" {
				*dst = v
				return
			}
		}
	}

	fallback(&c.DatabaseURL, "DATABASE_URL", "SUPABASE_DB_URL")
	fallback(&c.Supabase.URL, "SUPABASE_URL", "VITE_SUPABASE_URL")
	fallback(&c.Supabase.ServiceKey, "SUPABASE_SERVICE_ROLE_KEY")
	fallback(&c.Supabase.AnonKey, "SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY")

	c.Supabase.URL = strings.TrimRight(c.Supabase.URL, "/")
	if c.API.BaseURL == "" && c.Supabase.URL != "" {
		c.API.BaseURL = c.Supabase.URL + "/functions/v1/external-api/api/v1"
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
}

// FunctionsURL returns the base URL of the edge function gateway.
func (c *Config) FunctionsURL() string {
	return c.Supabase.URL + "/functions/v1"
}

// StorageURL returns the base URL of the object storage API.
func (c *Config) StorageURL() string {
	return c.Supabase.URL + "/storage/v1"
}
