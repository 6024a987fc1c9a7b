package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/comigor/chatgpt-local/internal/logger"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Config holds the application configuration
type Config struct {
	Model           string        `mapstructure:"model"`
	SystemPrompt    string        `mapstructure:"system_prompt"`
	DatabasePath    string        `mapstructure:"database_path"`
	ProvidersPath   string        `mapstructure:"providers_path"`
	AzureAPIVersion string        `mapstructure:"azure_api_version"`
	LogLevel        string        `mapstructure:"log_level"`
	LogPath         string        `mapstructure:"log_path"`
	ScrollDelay     time.Duration `mapstructure:"scroll_delay"`
	PreviewLength   int           `mapstructure:"preview_length"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("model", "gpt-4o")
	v.SetDefault("system_prompt", defaultSystemPrompt)
	v.SetDefault("database_path", filepath.Join(home, "chatgpt_local.db"))
	v.SetDefault("providers_path", filepath.Join(home, "chatgpt_local.config"))
	v.SetDefault("azure_api_version", "2024-02-01")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_path", filepath.Join(home, ".chatgpt-local", "chatgpt-local.log"))
	v.SetDefault("scroll_delay", 100*time.Millisecond)
	v.SetDefault("preview_length", 20)
}

// Load reads config.yaml from $CONFIG_PATH, ~/.chatgpt-local or the working
// directory. A missing file is not an error when CONFIG_PATH is unset: every
// key has a default and may be overridden with CHATGPT_LOCAL_<KEY>.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, ".chatgpt-local"))
		v.AddConfigPath(".")
	}
	setDefaults(v, home)
	v.SetEnvPrefix("CHATGPT_LOCAL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}
	config.v = v
	return config, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config.PreviewLength <= 0 {
		config.PreviewLength = 20
	}
	return &config, nil
}

// Watch calls fn with a freshly decoded Config whenever the config file changes.
// It does nothing when no file was read.
func (c *Config) Watch(fn func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(c.v)
		if err != nil {
			logger.L.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}
		logger.L.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		fn(next)
	})
	c.v.WatchConfig()
}
