// Package config manages YAML-based configuration, environment overrides and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/CageChen/imagediff/internal/logging"
)

const (
	configName = ".imagediff"
	configType = "yaml"
	envPrefix  = "IMAGEDIFF"
)

// Config holds all configuration options for imagediff
type Config struct {
	Extensions []string      `mapstructure:"extensions" yaml:"extensions"`
	Exclude    []string      `mapstructure:"exclude" yaml:"exclude"`
	Output     string        `mapstructure:"output" yaml:"output"`
	Host       string        `mapstructure:"host" yaml:"host"`
	Port       int           `mapstructure:"port" yaml:"port"`
	Open       bool          `mapstructure:"open" yaml:"open"`
	Watch      bool          `mapstructure:"watch" yaml:"watch"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
	LogLevel   string        `mapstructure:"log_level" yaml:"log_level"`
	LogJSON    bool          `mapstructure:"log_json" yaml:"log_json"`

	// Internal: path of the file the config was read from, empty if none
	configPath string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Extensions: []string{".png", ".jpg", ".jpeg", ".gif"},
		Exclude:    []string{".git", ".svn"},
		Output:     "output",
		Host:       "127.0.0.1",
		Port:       8080,
		Watch:      true,
		Debounce:   250 * time.Millisecond,
		LogLevel:   "info",
	}
}

// GetConfigDir returns the config directory path
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/imagediff"
	}
	return filepath.Join(home, ".config", "imagediff")
}

// GetConfigPath returns the full path to the global config file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load reads configuration from defaults, an optional YAML file and
// IMAGEDIFF_* environment variables. If path is non-empty it must exist.
// Otherwise .imagediff.yaml is searched in the working directory and $HOME,
// then ~/.config/imagediff/config.yaml. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path != "":
		v.SetConfigFile(path)
	default:
		if _, err := os.Stat(GetConfigPath()); err == nil {
			v.SetConfigFile(GetConfigPath())
		} else {
			v.SetConfigName(configName)
			v.AddConfigPath(".")
			if home, err := os.UserHomeDir(); err == nil {
				v.AddConfigPath(home)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.configPath = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("exclude", d.Exclude)
	v.SetDefault("output", d.Output)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("open", d.Open)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_json", d.LogJSON)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Extensions) == 0 {
		return errors.New("extensions: at least one extension is required")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("extensions: %q must start with a dot", ext)
		}
	}
	for _, pattern := range c.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("exclude: bad pattern %q: %w", pattern, err)
		}
	}
	if c.Host == "" {
		return errors.New("host: must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port: %d out of range", c.Port)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce: must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// GetConfigFilePath returns the path of the config file that was loaded, if any
func (c *Config) GetConfigFilePath() string {
	return c.configPath
}

// IsExcluded checks if a file or directory name matches an exclude pattern
func (c *Config) IsExcluded(path string) bool {
	base := filepath.Base(path)
	for _, exclude := range c.Exclude {
		if matched, _ := filepath.Match(exclude, base); matched {
			return true
		}
	}
	return false
}

// IsImageFile reports whether the name ends with one of the configured
// extensions. The match is case-sensitive.
func (c *Config) IsImageFile(path string) bool {
	for _, e := range c.Extensions {
		if strings.HasSuffix(path, e) {
			return true
		}
	}
	return false
}
