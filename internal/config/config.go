package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Database    string `mapstructure:"database"`
	TypeFilter  string `mapstructure:"type_filter"`
	OodleMethod int    `mapstructure:"oodle_method"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// Load reads configuration from cfgFile, or from unitypack.yaml in the home
// or working directory when cfgFile is empty. A missing file is not an
// error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database", "unitypack.db")
	v.SetDefault("type_filter", "GameObject")
	v.SetDefault("oodle_method", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName("unitypack")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field. Call it again after applying flag overrides.
func (c *Config) Validate() error {
	if err := validateTypeFilter(c.TypeFilter); err != nil {
		return fmt.Errorf("invalid type filter: %w", err)
	}
	if err := validateOodleMethod(c.OodleMethod); err != nil {
		return fmt.Errorf("invalid oodle method: %w", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if err := validateLogFormat(c.LogFormat); err != nil {
		return fmt.Errorf("invalid log format: %w", err)
	}
	return nil
}
