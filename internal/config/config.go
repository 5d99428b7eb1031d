package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all CLI configuration.
type Config struct {
	// MpyCross is the cross-compiler executable for user programs
	MpyCross string `mapstructure:"mpy-cross"`

	// FirmwareURL is the release directory archives are fetched from
	// when no archive file is given; empty disables fetching
	FirmwareURL string `mapstructure:"firmware-url"`

	// ScanTimeout bounds the BLE advertisement scan
	ScanTimeout time.Duration `mapstructure:"scan-timeout"`

	// Verbose enables debug logging
	Verbose bool `mapstructure:"verbose"`
}

// Load reads configuration from flags, environment and config file.
func Load() (*Config, error) {
	viper.SetDefault("mpy-cross", "mpy-cross")
	viper.SetDefault("firmware-url", "")
	viper.SetDefault("scan-timeout", 30*time.Second)
	viper.SetDefault("verbose", false)

	// Environment variables (HUBFLASH_MPY_CROSS, etc.)
	viper.SetEnvPrefix("HUBFLASH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.hubflash")
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.MpyCross == "" {
		return fmt.Errorf("mpy-cross cannot be empty")
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan-timeout must be positive")
	}
	return nil
}
