package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the drug advisor service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Env      EnvConfig      `yaml:"env"`
	Model    ModelConfig    `yaml:"model"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls the HTTP, probe and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ProbeAddress    string        `yaml:"probeAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// EnvConfig configures access to the deployment environment service that
// lists deployments and proxies scoring and feedback calls.
type EnvConfig struct {
	BaseURL         string        `yaml:"baseURL"`
	DeploymentsPath string        `yaml:"deploymentsPath"`
	ScorePath       string        `yaml:"scorePath"`
	FeedbackPath    string        `yaml:"feedbackPath"`
	Timeout         time.Duration `yaml:"timeout"`
	// RateLimit bounds outbound requests per second; zero disables limiting.
	RateLimit float64       `yaml:"rateLimit"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the per-operation circuit breakers.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"maxRequests"`
	Interval     time.Duration `yaml:"interval"`
	OpenTimeout  time.Duration `yaml:"openTimeout"`
	MinRequests  uint32        `yaml:"minRequests"`
	FailureRatio float64       `yaml:"failureRatio"`
}

// ModelConfig points at the model file and the deployment compatibility rules.
type ModelConfig struct {
	Path            string `yaml:"path"`
	RequiredRuntime string `yaml:"requiredRuntime"`
	TimestampLayout string `yaml:"timestampLayout"`
	TimeZone        string `yaml:"timeZone"`
}

// SessionsConfig bounds the number and lifetime of browser workflows.
type SessionsConfig struct {
	MaxSessions int           `yaml:"maxSessions"`
	IdleTTL     time.Duration `yaml:"idleTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Redis-backed sharing of the raw deployment list.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	DeploymentsTTL time.Duration `yaml:"deploymentsTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DRUG_ADVISOR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Env.Timeout <= 0 {
		return fmt.Errorf("env.timeout must be positive")
	}
	if c.Env.RateLimit < 0 {
		return fmt.Errorf("env.rateLimit must not be negative")
	}
	if c.Sessions.MaxSessions <= 0 {
		return fmt.Errorf("sessions.maxSessions must be positive")
	}
	if _, err := c.Model.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured time zone used to format deployment timestamps.
func (m ModelConfig) Location() (*time.Location, error) {
	if m.TimeZone == "" || strings.EqualFold(m.TimeZone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(m.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("model.timeZone: %w", err)
	}
	return loc, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ProbeAddress:    ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Env: EnvConfig{
			DeploymentsPath: "/env/deployments",
			ScorePath:       "/env/score/",
			FeedbackPath:    "/env/feedback/",
			Timeout:         30 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:  3,
				Interval:     30 * time.Second,
				OpenTimeout:  60 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.6,
			},
		},
		Model: ModelConfig{
			Path:            "config/model.json",
			RequiredRuntime: "spark",
			TimestampLayout: "1/2/2006, 3:04:05 PM",
		},
		Sessions: SessionsConfig{
			MaxSessions: 1024,
			IdleTTL:     30 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:        false,
			DeploymentsTTL: time.Minute,
			DialTimeout:    2 * time.Second,
			ReadTimeout:    500 * time.Millisecond,
			WriteTimeout:   500 * time.Millisecond,
			MaxRetries:     2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRUG_ADVISOR_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DRUG_ADVISOR_PROBE_ADDRESS"); v != "" {
		cfg.Server.ProbeAddress = v
	}
	if v := os.Getenv("DRUG_ADVISOR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("DRUG_ADVISOR_ENV_BASE_URL"); v != "" {
		cfg.Env.BaseURL = v
	}
	if v := os.Getenv("DRUG_ADVISOR_ENV_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Env.Timeout = d
		}
	}
	if v := os.Getenv("DRUG_ADVISOR_ENV_RATE_LIMIT"); v != "" {
		if limit, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Env.RateLimit = limit
		}
	}
	if v := os.Getenv("DRUG_ADVISOR_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("DRUG_ADVISOR_REQUIRED_RUNTIME"); v != "" {
		cfg.Model.RequiredRuntime = v
	}
	if v := os.Getenv("DRUG_ADVISOR_TIME_ZONE"); v != "" {
		cfg.Model.TimeZone = v
	}
	if v := os.Getenv("DRUG_ADVISOR_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.MaxSessions = n
		}
	}
	if v := os.Getenv("DRUG_ADVISOR_SESSION_IDLE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sessions.IdleTTL = d
		}
	}
	if v := os.Getenv("DRUG_ADVISOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DRUG_ADVISOR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("DRUG_ADVISOR_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("DRUG_ADVISOR_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("DRUG_ADVISOR_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("DRUG_ADVISOR_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("DRUG_ADVISOR_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("DRUG_ADVISOR_CACHE_DEPLOYMENTS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DeploymentsTTL = d
		}
	}
}
