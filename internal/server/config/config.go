// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const GiB = int64(1) << 30

// Config holds runtime settings for the storage engine.
//
// An empty DatabaseDSN selects the in-memory metadata store, which is meant
// for development and tests only.
type Config struct {
	DatabaseDSN string
	MetricsAddr string
	LogFormat   string `validate:"oneof=json console"`

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string `validate:"required"`
	S3Region       string `validate:"required"`
	S3BaseEndpoint string

	DefaultQuotaBytes int64 `validate:"gt=0"`
	MaxTreeDepth      int   `validate:"gte=1,lte=100000"`
	HardQuota         bool
	RestoreToRoot     bool

	UploadTTL        time.Duration `validate:"gt=0"`
	WriteURLTTL      time.Duration `validate:"gt=0"`
	ReadURLTTL       time.Duration `validate:"gt=0"`
	OperationTimeout time.Duration `validate:"gt=0"`

	SweepInterval  time.Duration `validate:"gt=0"`
	SweepBatchSize int           `validate:"gt=0,lte=1000"`
	SweepRate      float64       `validate:"gt=0"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: S3 credentials below are for a local MinIO and must be overridden.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = ""
	c.MetricsAddr = ":9090"
	c.LogFormat = "json"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "vault"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.DefaultQuotaBytes = 15 * GiB
	c.MaxTreeDepth = 1000
	c.HardQuota = false
	c.RestoreToRoot = true
	c.UploadTTL = 2 * time.Hour
	c.WriteURLTTL = 2 * time.Hour
	c.ReadURLTTL = 15 * time.Minute
	c.OperationTimeout = 30 * time.Second
	c.SweepInterval = 10 * time.Minute
	c.SweepBatchSize = 500
	c.SweepRate = 5
}

// Validate checks the loaded values. The write handle must not outlive the
// pending upload it belongs to.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.WriteURLTTL > c.UploadTTL {
		return fmt.Errorf("invalid config: write url ttl %s exceeds upload ttl %s", c.WriteURLTTL, c.UploadTTL)
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
