// Package config loads server settings from an optional yaml file with
// environment overrides. Precedence is env, then file, then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SLIPSTREAM"

// Config is the full server configuration.
type Config struct {
	// Port the HTTP and websocket listener binds.
	Port int `yaml:"port" mapstructure:"port"`
	// DataDir is the root of the on-disk store (tracks, leaderboards, races).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	// Deploy selects the deployment mode, "dev" or "prod". Dev mode defaults
	// to pretty console logging.
	Deploy string `yaml:"deploy" mapstructure:"deploy"`
	// LogLevel is a zerolog level name: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Pretty switches logging from JSON to human-readable console output.
	Pretty bool `yaml:"pretty" mapstructure:"pretty"`
	// ShutdownGrace bounds how long in-flight work may run after SIGTERM.
	ShutdownGrace time.Duration `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	return &Config{
		Port:          3000,
		DataDir:       "./data",
		Deploy:        "dev",
		LogLevel:      "info",
		Pretty:        false,
		ShutdownGrace: 10 * time.Second,
	}
}

// Load reads configuration from the yaml file at path, if it exists, and
// applies SLIPSTREAM_* environment overrides. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	// The hosting environment sets the short names; the prefixed forms win
	// when both are present.
	_ = vp.BindEnv("port", "SLIPSTREAM_PORT", "PORT")
	_ = vp.BindEnv("data_dir", "SLIPSTREAM_DATA_DIR", "DATA_DIR")
	_ = vp.BindEnv("deploy", "SLIPSTREAM_DEPLOY", "DEPLOY")

	def := Default()
	vp.SetDefault("port", def.Port)
	vp.SetDefault("data_dir", def.DataDir)
	vp.SetDefault("deploy", def.Deploy)
	vp.SetDefault("log_level", def.LogLevel)
	vp.SetDefault("pretty", def.Pretty)
	vp.SetDefault("shutdown_grace", def.ShutdownGrace)

	if path != "" {
		vp.SetConfigFile(path)
		vp.SetConfigType("yaml")
		if err := vp.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch c.Deploy {
	case "dev", "prod":
	default:
		return fmt.Errorf("unknown deploy mode %q", c.Deploy)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown_grace must not be negative")
	}
	return nil
}

// PrettyLog reports whether logs should render for a console. Dev deployments
// always do; prod emits JSON unless pretty is forced on.
func (c *Config) PrettyLog() bool {
	return c.Pretty || c.Deploy == "dev"
}

// WriteYaml writes the configuration as a starter yaml file.
func (c *Config) WriteYaml(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
