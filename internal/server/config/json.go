package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cloudvault/internal/flagx"
	"github.com/dmitrijs2005/cloudvault/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations are
// parsed by timex.Duration ("15m", "2h"). Pointer fields distinguish
// "absent" from an explicit zero/false.
type JsonConfig struct {
	DatabaseDSN       *string         `json:"database_dsn"`
	MetricsAddr       *string         `json:"metrics_addr"`
	LogFormat         *string         `json:"log_format"`
	S3RootUser        *string         `json:"s3_root_user"`
	S3RootPassword    *string         `json:"s3_root_password"`
	S3Bucket          *string         `json:"s3_bucket"`
	S3Region          *string         `json:"s3_region"`
	S3BaseEndpoint    *string         `json:"s3_base_endpoint"`
	DefaultQuotaBytes *int64          `json:"default_quota_bytes"`
	MaxTreeDepth      *int            `json:"max_tree_depth"`
	HardQuota         *bool           `json:"hard_quota"`
	RestoreToRoot     *bool           `json:"restore_to_root"`
	UploadTTL         *timex.Duration `json:"upload_ttl"`
	WriteURLTTL       *timex.Duration `json:"write_url_ttl"`
	ReadURLTTL        *timex.Duration `json:"read_url_ttl"`
	OperationTimeout  *timex.Duration `json:"operation_timeout"`
	SweepInterval     *timex.Duration `json:"sweep_interval"`
	SweepBatchSize    *int            `json:"sweep_batch_size"`
	SweepRate         *float64        `json:"sweep_rate"`
}

// parseJson overlays the file named by -c/-config onto config.
// A missing flag leaves config untouched; unreadable or malformed files panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	if err := ApplyFile(config, jsonConfigFile); err != nil {
		panic(err)
	}
}

// ApplyFile overlays the JSON file at path onto config.
func ApplyFile(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setValue(&config.DatabaseDSN, c.DatabaseDSN)
	setValue(&config.MetricsAddr, c.MetricsAddr)
	setValue(&config.LogFormat, c.LogFormat)
	setValue(&config.S3RootUser, c.S3RootUser)
	setValue(&config.S3RootPassword, c.S3RootPassword)
	setValue(&config.S3Bucket, c.S3Bucket)
	setValue(&config.S3Region, c.S3Region)
	setValue(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setValue(&config.DefaultQuotaBytes, c.DefaultQuotaBytes)
	setValue(&config.MaxTreeDepth, c.MaxTreeDepth)
	setValue(&config.HardQuota, c.HardQuota)
	setValue(&config.RestoreToRoot, c.RestoreToRoot)
	setValue(&config.SweepBatchSize, c.SweepBatchSize)
	setValue(&config.SweepRate, c.SweepRate)

	if c.UploadTTL != nil {
		config.UploadTTL = c.UploadTTL.Duration
	}
	if c.WriteURLTTL != nil {
		config.WriteURLTTL = c.WriteURLTTL.Duration
	}
	if c.ReadURLTTL != nil {
		config.ReadURLTTL = c.ReadURLTTL.Duration
	}
	if c.OperationTimeout != nil {
		config.OperationTimeout = c.OperationTimeout.Duration
	}
	if c.SweepInterval != nil {
		config.SweepInterval = c.SweepInterval.Duration
	}
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
