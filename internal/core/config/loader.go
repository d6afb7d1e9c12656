package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Scan.WindowSize == 0 {
		cfg.Scan.WindowSize = 100
	}
	if cfg.Scan.PollInterval == 0 {
		cfg.Scan.PollInterval = 30 * time.Second
	}
	if cfg.Scan.MaxWindowRetries == 0 {
		cfg.Scan.MaxWindowRetries = 3
	}
	if cfg.Scan.FetchWorkers == 0 {
		cfg.Scan.FetchWorkers = 4
	}
	if cfg.Decode.Format == "" {
		cfg.Decode.Format = "rlp"
	}
	if cfg.Decode.Workers == 0 {
		cfg.Decode.Workers = 4
	}
	if cfg.Chain.Retry.MaxAttempts == 0 {
		cfg.Chain.Retry.MaxAttempts = 5
	}
	if cfg.Chain.Retry.InitialDelay == 0 {
		cfg.Chain.Retry.InitialDelay = 1 * time.Second
	}
	if cfg.Chain.Retry.MaxDelay == 0 {
		cfg.Chain.Retry.MaxDelay = 60 * time.Second
	}
	if cfg.Chain.Retry.BackoffMultiple == 0 {
		cfg.Chain.Retry.BackoffMultiple = 2.0
	}

	if cfg.Chain.RollupAddress == "" {
		return nil, fmt.Errorf("chain.rollup_address is required")
	}

	return &cfg, nil
}
