// Package config loads the daemon configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr      = ":8645"
	DefaultMetricsAddr     = ":9090"
	DefaultEventBufferSize = 100
)

// Config holds the daemon configuration.
type Config struct {
	// ListenAddr is the address the JSON-RPC server binds to.
	ListenAddr string `yaml:"listenAddr"`
	// MetricsAddr is the address the Prometheus /metrics endpoint binds to.
	MetricsAddr string `yaml:"metricsAddr"`
	// Custodian is the ledger account that holds pooled reserves.
	Custodian string `yaml:"custodian"`
	// StorePath points at the pool database file. Empty keeps every pool
	// in memory only.
	StorePath string `yaml:"storePath"`
	// EventBufferSize bounds the swap event channel.
	EventBufferSize uint `yaml:"eventBufferSize"`
}

// LoadConfig reads and validates the configuration at path, filling in
// defaults for omitted fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		ListenAddr:      DefaultListenAddr,
		MetricsAddr:     DefaultMetricsAddr,
		EventBufferSize: DefaultEventBufferSize,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: listenAddr is required")
	}
	if c.MetricsAddr == "" {
		return errors.New("config: metricsAddr is required")
	}
	if !common.IsHexAddress(c.Custodian) {
		return fmt.Errorf("config: custodian %q is not a valid address", c.Custodian)
	}
	if common.HexToAddress(c.Custodian) == (common.Address{}) {
		return errors.New("config: custodian must not be the zero address")
	}
	if c.EventBufferSize == 0 {
		return errors.New("config: eventBufferSize must be greater than 0")
	}
	return nil
}

// CustodianAddress returns the parsed custodian account.
func (c *Config) CustodianAddress() common.Address {
	return common.HexToAddress(c.Custodian)
}
