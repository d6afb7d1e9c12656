package config

import (
	"time"

	redisclient "github.com/vietddude/batchwatch/internal/infra/redis"
	"github.com/vietddude/batchwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chain    ChainConfig        `yaml:"chain"`
	Scan     ScanConfig         `yaml:"scan"`
	Decode   DecodeConfig       `yaml:"decode"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds the L1 connection and rollup contract settings.
type ChainConfig struct {
	RPCURL        string `yaml:"rpc_url"          mapstructure:"rpc_url"`
	BeaconURL     string `yaml:"beacon_url"       mapstructure:"beacon_url"`
	RollupAddress string `yaml:"rollup_address"   mapstructure:"rollup_address"`

	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig bounds the backoff applied to transient RPC failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"     mapstructure:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"    mapstructure:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"        mapstructure:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple" mapstructure:"backoff_multiple"`
}

// ScanConfig drives the ingestion loop.
type ScanConfig struct {
	StartBlock       uint64        `yaml:"start_block"        mapstructure:"start_block"`
	EndBlock         uint64        `yaml:"end_block"          mapstructure:"end_block"` // 0 = latest
	WindowSize       uint64        `yaml:"window_size"        mapstructure:"window_size"`
	PollInterval     time.Duration `yaml:"poll_interval"      mapstructure:"poll_interval"`
	MaxWindowRetries int           `yaml:"max_window_retries" mapstructure:"max_window_retries"`
	FetchWorkers     int           `yaml:"fetch_workers"      mapstructure:"fetch_workers"`
	RescanRanges     bool          `yaml:"rescan_ranges"      mapstructure:"rescan_ranges"`
	RetentionPeriod  time.Duration `yaml:"retention_period"   mapstructure:"retention_period"` // 0 keeps decoded records forever
}

// DecodeConfig drives the decode phase.
type DecodeConfig struct {
	Format  string `yaml:"format"  mapstructure:"format"` // batch format identifier, e.g. "rlp"
	Workers int    `yaml:"workers" mapstructure:"workers"`
}
