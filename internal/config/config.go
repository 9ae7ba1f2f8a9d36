package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/KaramelBytes/docqa-cli/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user directory holding config, state and logs.
const DirName = ".docqa"

// Global configuration structure.
type Global struct {
	ServiceURL     string `mapstructure:"service_url" yaml:"service_url"`
	HTTPTimeoutSec int    `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Local state
	StateFile string `mapstructure:"state_file" yaml:"state_file"`

	// Logging
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Color bool `mapstructure:"color" yaml:"color"`
}

// Dir returns ~/.docqa.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.docqa/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCQA")
	v.AutomaticEnv()

	v.SetDefault("service_url", "http://127.0.0.1:8000")
	// 0 leaves requests without a client-side timeout
	v.SetDefault("http_timeout_sec", 0)
	v.SetDefault("state_file", filepath.Join("~", DirName, "session.json"))
	v.SetDefault("log_file", filepath.Join("~", DirName, "logs", "docqa.log"))
	v.SetDefault("log_level", "info")
	v.SetDefault("color", true)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// StatePath returns state_file with a leading "~" resolved. The stored value
// keeps the "~" so that Save writes it back unchanged.
func (c *Global) StatePath() (string, error) {
	return utils.ExpandHome(c.StateFile)
}

// LogPath returns log_file with a leading "~" resolved.
func (c *Global) LogPath() (string, error) {
	return utils.ExpandHome(c.LogFile)
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{"service_url", "http_timeout_sec", "state_file", "log_file", "log_level", "color"}

// Set assigns a string value to key, validating its type.
func (c *Global) Set(key, val string) error {
	switch key {
	case "service_url":
		if val == "" {
			return fmt.Errorf("service_url cannot be empty")
		}
		c.ServiceURL = val
	case "http_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for http_timeout_sec: %v", val)
		}
		c.HTTPTimeoutSec = i
	case "state_file":
		c.StateFile = val
	case "log_file":
		c.LogFile = val
	case "log_level":
		switch val {
		case "debug", "info", "warn", "error":
			c.LogLevel = val
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "color":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for color: %v", val)
		}
		c.Color = b
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// Get returns the display value of key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "service_url":
		return c.ServiceURL, nil
	case "http_timeout_sec":
		return strconv.Itoa(c.HTTPTimeoutSec), nil
	case "state_file":
		return c.StateFile, nil
	case "log_file":
		return c.LogFile, nil
	case "log_level":
		return c.LogLevel, nil
	case "color":
		return strconv.FormatBool(c.Color), nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}
