// Package config resolves run configuration from, in increasing precedence: built-in
// defaults, an optional YAML file, a .env file, and the process environment. CLI flags are
// applied last by cmd/landscape.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shpitdev/community-landscape/internal/store"
	"github.com/shpitdev/community-landscape/pkg/influence"
	"github.com/shpitdev/community-landscape/pkg/pipeline/worker"
	"github.com/shpitdev/community-landscape/pkg/social"
	"gopkg.in/yaml.v3"
)

type Social struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	PageSize int    `yaml:"page_size"`
	MaxPages int    `yaml:"max_pages"`
}

type Influence struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	AuthScheme string `yaml:"auth_scheme"`
	Platform   string `yaml:"platform"`
}

type Pipeline struct {
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
}

type Store struct {
	Kind string `yaml:"kind"`
	Dir  string `yaml:"dir"`
}

type Gemini struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Config is the resolved configuration of one process.
type Config struct {
	Social    Social    `yaml:"social"`
	Influence Influence `yaml:"influence"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Store     Store     `yaml:"store"`
	Gemini    Gemini    `yaml:"gemini"`
	// CAPath optionally replaces the system trust store for both APIs.
	CAPath string `yaml:"ca_path"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Social: Social{
			BaseURL:  social.DefaultBaseURL,
			PageSize: social.MaxPageSize,
		},
		Influence: Influence{
			BaseURL:    influence.DefaultBaseURL,
			AuthScheme: influence.DefaultAuthScheme,
			Platform:   influence.DefaultPlatform,
		},
		Pipeline: Pipeline{
			Workers:        worker.DefaultWorkers,
			RequestTimeout: 20 * time.Second,
		},
		Store: Store{
			Kind: string(store.KindCSV),
			Dir:  store.DefaultDir,
		},
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Load resolves configuration from the process environment. path is an optional YAML file;
// dotenv files are loaded into the environment first without overriding variables that
// are already set.
func Load(path string, dotenv ...string) (Config, error) {
	if err := LoadDotEnv(dotenv...); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads each existing dotenv file. Missing files are skipped; with no paths it
// tries ".env".
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("TWITTER_TOKEN", &c.Social.Token)
	str("SOCIAL_BASE_URL", &c.Social.BaseURL)
	str("BORG_API_KEY", &c.Influence.APIKey)
	str("INFLUENCE_BASE_URL", &c.Influence.BaseURL)
	str("INFLUENCE_AUTH_SCHEME", &c.Influence.AuthScheme)
	str("DATA_DIR", &c.Store.Dir)
	str("STORE", &c.Store.Kind)
	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("GEMINI_MODEL", &c.Gemini.Model)
	str("GEMINI_BASE_URL", &c.Gemini.BaseURL)
	str("CA_PATH", &c.CAPath)

	var err error
	if c.Pipeline.Workers, err = envInt(lookup, "WORKERS", c.Pipeline.Workers); err != nil {
		return err
	}
	if c.Pipeline.MaxRetries, err = envInt(lookup, "MAX_RETRIES", c.Pipeline.MaxRetries); err != nil {
		return err
	}
	if c.Pipeline.RequestTimeout, err = envDuration(lookup, "REQUEST_TIMEOUT", c.Pipeline.RequestTimeout); err != nil {
		return err
	}
	if c.Pipeline.RateLimitRPS, err = envFloat(lookup, "RATE_LIMIT_RPS", c.Pipeline.RateLimitRPS); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings a run needs. Credentials are checked by the clients.
func (c Config) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("workers must be > 0 (got %d)", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0 (got %d)", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0 (got %s)", c.Pipeline.RequestTimeout)
	}
	if c.Pipeline.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit must be >= 0 (got %g)", c.Pipeline.RateLimitRPS)
	}
	if c.Social.PageSize < 1 || c.Social.PageSize > social.MaxPageSize {
		return fmt.Errorf("page size must be in [1, %d] (got %d)", social.MaxPageSize, c.Social.PageSize)
	}
	switch store.Kind(strings.ToLower(c.Store.Kind)) {
	case store.KindCSV, store.KindSQLite:
	default:
		return fmt.Errorf("unknown store %q (want csv or sqlite)", c.Store.Kind)
	}
	return nil
}

// NarrationEnabled reports whether Gemini credentials are configured.
func (c Config) NarrationEnabled() bool {
	return strings.TrimSpace(c.Gemini.APIKey) != "" && strings.TrimSpace(c.Gemini.Model) != ""
}

func envInt(lookup LookupFunc, varName string, fallback int) (int, error) {
	v, _ := lookup(varName)
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(lookup LookupFunc, varName string, fallback float64) (float64, error) {
	v, _ := lookup(varName)
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(lookup LookupFunc, varName string, fallback time.Duration) (time.Duration, error) {
	v, _ := lookup(varName)
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
