package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/edgard/cropwise/internal/errors"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "CROPWISE"

// LoadConfig loads and validates configuration from, in increasing priority:
//  1. Default values
//  2. The config file at path, or ./config.yaml when path is empty
//  3. A .env file in the working directory
//  4. CROPWISE_* environment variables and their aliases
//
// A missing ./config.yaml is not an error; a missing explicit path is.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewConfigError("failed to read .env file", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to bind environment for %s", key), err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, apperrors.NewConfigError("failed to read config file", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to parse config", err)
	}

	if cfg.Assistant.Provider == "gemini" {
		if cfg.Assistant.Model == DefaultOpenAIModel {
			cfg.Assistant.Model = DefaultGeminiModel
		}
		if cfg.Assistant.BaseURL == DefaultOpenAIBaseURL {
			cfg.Assistant.BaseURL = ""
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("invalid configuration", err)
	}

	return nil
}

// Redacted returns a copy of c with secrets masked, safe to log.
func (c Config) Redacted() Config {
	c.Assistant.APIKey = mask(c.Assistant.APIKey)
	c.Telegram.Token = mask(c.Telegram.Token)

	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}

	return "********"
}
