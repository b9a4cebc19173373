package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	EHIDB    string `mapstructure:"EHI_DB"`
	OutDir   string `mapstructure:"OUT_DIR"`
	Mode     string `mapstructure:"MODE"`
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("OUT_DIR", "out")
	v.SetDefault("MODE", "compact")
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("EHI_DB")
	v.BindEnv("OUT_DIR")
	v.BindEnv("MODE")
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.EHIDB == "" {
		return nil, fmt.Errorf("EHI_DB is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with.
func (c *Config) Validate() error {
	if c.EHIDB == "" {
		return fmt.Errorf("EHI_DB is required")
	}
	if c.Mode != "compact" && c.Mode != "full" {
		return fmt.Errorf("MODE must be \"compact\" or \"full\", got %q", c.Mode)
	}
	if c.OutDir == "" {
		return fmt.Errorf("OUT_DIR is required")
	}
	return nil
}
