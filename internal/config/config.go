package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/gitcohort/gitcohort-go/internal/errors"
)

// Config holds all settings. Values come from, in order of precedence:
// explicit flags, environment (GITCOHORT_* or the conventional GitLab
// names), config file, defaults.
type Config struct {
	GitLab  GitLabConfig  `mapstructure:"gitlab"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Grading GradingConfig `mapstructure:"grading"`
}

type GitLabConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	RateLimit      int           `mapstructure:"rate_limit"` // requests per second
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type BatchConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`      // per-user worker pool size
	MaxInFlight     int64         `mapstructure:"max_in_flight"`    // global request bound
	PipelineTimeout time.Duration `mapstructure:"pipeline_timeout"` // per-user overall deadline
	MaxProjects     int           `mapstructure:"max_projects"`     // projects processed per user
}

type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // "memory", "redis", "bolt"
	Directory string        `mapstructure:"directory"`
	UserTTL   time.Duration `mapstructure:"user_ttl"`
	BatchTTL  time.Duration `mapstructure:"batch_ttl"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

type GradingConfig struct {
	// Deltas at or beyond these fractions of the cohort mean flip the
	// label. Symmetric by default.
	GoodThreshold  float64 `mapstructure:"good_threshold"`
	BelowThreshold float64 `mapstructure:"below_threshold"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		GitLab: GitLabConfig{
			RateLimit:      5,
			RequestTimeout: 15 * time.Second,
		},
		Batch: BatchConfig{
			Concurrency:     5,
			MaxInFlight:     8,
			PipelineTimeout: 2 * time.Minute,
			MaxProjects:     50,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			Directory: filepath.Join(homeDir, ".gitcohort", "cache"),
			UserTTL:   30 * time.Minute,
			BatchTTL:  60 * time.Minute,
		},
		Grading: GradingConfig{
			GoodThreshold:  0.20,
			BelowThreshold: -0.20,
		},
	}
}

// Load reads configuration from the given file (or the conventional
// locations when empty), layered over defaults and under env overrides.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".gitcohort")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".gitcohort"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("GITCOHORT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		if !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file is fine, defaults plus env carry the day.
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The token and base URL also come from the conventional env names
	// so a bare environment works without a config file.
	if cfg.GitLab.Token == "" {
		cfg.GitLab.Token = os.Getenv("GITLAB_TOKEN")
	}
	if cfg.GitLab.BaseURL == "" {
		cfg.GitLab.BaseURL = os.Getenv("GITLAB_BASE_URL")
	}

	return cfg, nil
}

// Validate checks the settings a run cannot proceed without.
func (c *Config) Validate() error {
	if c.GitLab.BaseURL == "" {
		return errors.ConfigError("gitlab.base_url is required (or set GITLAB_BASE_URL)")
	}
	if c.GitLab.Token == "" {
		return errors.ConfigError("gitlab.token is required (or set GITLAB_TOKEN)")
	}
	if c.Batch.Concurrency <= 0 {
		return errors.ConfigError("batch.concurrency must be positive")
	}
	switch c.Cache.Backend {
	case "memory", "bolt":
	case "redis":
		if c.Cache.Redis.Host == "" {
			return errors.ConfigError("cache.redis.host is required for the redis backend")
		}
	default:
		return errors.ConfigError(fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("gitlab.rate_limit", d.GitLab.RateLimit)
	v.SetDefault("gitlab.request_timeout", d.GitLab.RequestTimeout)
	v.SetDefault("batch.concurrency", d.Batch.Concurrency)
	v.SetDefault("batch.max_in_flight", d.Batch.MaxInFlight)
	v.SetDefault("batch.pipeline_timeout", d.Batch.PipelineTimeout)
	v.SetDefault("batch.max_projects", d.Batch.MaxProjects)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.directory", d.Cache.Directory)
	v.SetDefault("cache.user_ttl", d.Cache.UserTTL)
	v.SetDefault("cache.batch_ttl", d.Cache.BatchTTL)
	v.SetDefault("grading.good_threshold", d.Grading.GoodThreshold)
	v.SetDefault("grading.below_threshold", d.Grading.BelowThreshold)
}
