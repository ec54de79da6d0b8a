package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main toolgate configuration.
type Config struct {
	// Parser mode selection
	Parser ParserConfig `json:"parser" mapstructure:"parser"`

	// Elevation pre-approval
	Elevation ElevationConfig `json:"elevation" mapstructure:"elevation"`

	// Task-specific definitions
	TSD TSDConfig `json:"tsd" mapstructure:"tsd"`

	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ParserConfig selects how model output is parsed for the session.
type ParserConfig struct {
	// Embedding is tri-state: true forces embedding-tag parsing, false
	// forces free-text parsing, unset selects hybrid.
	Embedding *bool `json:"embedding,omitempty" mapstructure:"embedding"`
}

// ElevationConfig holds session-wide elevation pre-approval. Tools listed
// here skip the privilege probe when pre-approval is on.
type ElevationConfig struct {
	PreApproved bool     `json:"pre_approved" mapstructure:"pre_approved"`
	Allowlist   []string `json:"allowlist" mapstructure:"allowlist"`
}

// TSDConfig locates task-specific definition documents.
type TSDConfig struct {
	Dir   string `json:"dir" mapstructure:"dir"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// GatewayConfig holds gateway server configuration.
type GatewayConfig struct {
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Parser: ParserConfig{
			Embedding: nil, // hybrid
		},
		Elevation: ElevationConfig{
			PreApproved: false,
			Allowlist:   []string{},
		},
		TSD: TSDConfig{
			Watch: true,
		},
		Gateway: GatewayConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Elevation.PreApproved && len(c.Elevation.Allowlist) == 0 {
		return fmt.Errorf("elevation pre-approval requires a non-empty allowlist")
	}

	return nil
}
