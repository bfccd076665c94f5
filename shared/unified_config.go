package shared

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds all configuration parameters for the entire application
type UnifiedConfiguration struct {
	Service   ServiceConfig   `json:"service"`
	Polling   PollingConfig   `json:"polling"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Store     StoreConfig     `json:"store"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServiceConfig holds configuration of the allotment backend API
type ServiceConfig struct {
	BaseURL            string        `json:"base_url"`
	AuthToken          string        `json:"-"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	MinRequestInterval time.Duration `json:"min_request_interval"`
}

// PollingConfig bounds the retry loop for registrar checks still in progress
type PollingConfig struct {
	MaxRetries    int           `json:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval"`
}

// ReconcileConfig holds reconciliation pass tuning
type ReconcileConfig struct {
	PANPacing       time.Duration `json:"pan_pacing"`
	RecheckInterval time.Duration `json:"recheck_interval"`
}

// StoreConfig selects and configures the key-value persistence driver
type StoreConfig struct {
	Driver      string `json:"driver"`
	BadgerPath  string `json:"badger_path"`
	RedisURL    string `json:"-"`
	DatabaseURL string `json:"-"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// NewDefaultDatabaseConfig returns pool settings sized for a key-value workload
func NewDefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

// Defaults for the allotment polling loop
const (
	DefaultPollMaxRetries    = 15
	DefaultPollRetryInterval = 2000 * time.Millisecond
	DefaultPANPacing         = 100 * time.Millisecond
)

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Service: ServiceConfig{
			BaseURL:            "http://localhost:8080",
			HTTPRequestTimeout: 30 * time.Second,
			MinRequestInterval: 0,
		},
		Polling: PollingConfig{
			MaxRetries:    DefaultPollMaxRetries,
			RetryInterval: DefaultPollRetryInterval,
		},
		Reconcile: ReconcileConfig{
			PANPacing:       DefaultPANPacing,
			RecheckInterval: 10 * time.Minute,
		},
		Store: StoreConfig{
			Driver:     "memory",
			BadgerPath: "data/badger",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "ipo-allotment-client",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.Service.BaseURL == "" {
		c.Service.BaseURL = defaults.Service.BaseURL
		logger.Debug("Applied default Service.BaseURL")
	}
	c.Service.BaseURL = strings.TrimRight(c.Service.BaseURL, "/")

	if c.Service.HTTPRequestTimeout <= 0 {
		c.Service.HTTPRequestTimeout = defaults.Service.HTTPRequestTimeout
		logger.Debug("Applied default Service.HTTPRequestTimeout")
	}

	if c.Service.MinRequestInterval < 0 {
		c.Service.MinRequestInterval = 0
	}

	if c.Polling.MaxRetries < 0 {
		c.Polling.MaxRetries = defaults.Polling.MaxRetries
		logger.Debug("Applied default Polling.MaxRetries")
	}

	if c.Polling.RetryInterval <= 0 {
		c.Polling.RetryInterval = defaults.Polling.RetryInterval
		logger.Debug("Applied default Polling.RetryInterval")
	}

	if c.Reconcile.PANPacing < 0 {
		c.Reconcile.PANPacing = defaults.Reconcile.PANPacing
		logger.Debug("Applied default Reconcile.PANPacing")
	}

	if c.Reconcile.RecheckInterval <= 0 {
		c.Reconcile.RecheckInterval = defaults.Reconcile.RecheckInterval
		logger.Debug("Applied default Reconcile.RecheckInterval")
	}

	if c.Store.Driver == "" {
		c.Store.Driver = defaults.Store.Driver
		logger.Debug("Applied default Store.Driver")
	}

	if c.Store.BadgerPath == "" {
		c.Store.BadgerPath = defaults.Store.BadgerPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}

	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}

	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
	}
}

// ConfigureLogging applies the logging configuration to the standard logrus logger
func ConfigureLogging(cfg LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
}
