package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8081"`
	BackendURL  string `env:"BACKEND_URL" envDefault:"http://localhost:8080"`
	AuthToken   string `env:"AUTH_TOKEN"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	BadgerPath  string `env:"BADGER_PATH" envDefault:"data/badger"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	PollMaxRetries            int           `env:"POLL_MAX_RETRIES" envDefault:"15"`
	PollRetryInterval         time.Duration `env:"POLL_RETRY_INTERVAL" envDefault:"2s"`
	PANPacing                 time.Duration `env:"PAN_PACING" envDefault:"100ms"`
	HTTPTimeout               time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	BackendMinRequestInterval time.Duration `env:"BACKEND_MIN_REQUEST_INTERVAL" envDefault:"0s"`
	RecheckInterval           time.Duration `env:"RECHECK_INTERVAL" envDefault:"10m"`
}

// LoadConfig reads .env (when present) and the process environment
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		logrus.WithError(err).Warn("Invalid environment configuration, falling back to defaults")
		cfg = defaultConfig()
	}
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	// Parsing an empty environment only applies envDefault tags.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// Unified maps the flat environment config onto the grouped service configuration
func (c *Config) Unified() *shared.UnifiedConfiguration {
	unified := &shared.UnifiedConfiguration{
		Service: shared.ServiceConfig{
			BaseURL:            c.BackendURL,
			AuthToken:          c.AuthToken,
			HTTPRequestTimeout: c.HTTPTimeout,
			MinRequestInterval: c.BackendMinRequestInterval,
		},
		Polling: shared.PollingConfig{
			MaxRetries:    c.PollMaxRetries,
			RetryInterval: c.PollRetryInterval,
		},
		Reconcile: shared.ReconcileConfig{
			PANPacing:       c.PANPacing,
			RecheckInterval: c.RecheckInterval,
		},
		Store: shared.StoreConfig{
			Driver:      c.StoreDriver,
			BadgerPath:  c.BadgerPath,
			RedisURL:    c.RedisURL,
			DatabaseURL: c.DatabaseURL,
		},
		Logging: shared.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
		},
	}
	unified.ValidateAndApplyDefaults()
	return unified
}
