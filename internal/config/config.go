package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/appconnect/internal/auth"
	"github.com/loykin/appconnect/internal/env"
	"github.com/loykin/appconnect/internal/logger"
	apptls "github.com/loykin/appconnect/internal/tls"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. APPCONNECT_SERVER_LISTEN.
const EnvPrefix = "APPCONNECT"

// Config represents the top-level TOML structure.
type Config struct {
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Launch  LaunchConfig  `toml:"launch" mapstructure:"launch"`
	Client  ClientConfig  `toml:"client" mapstructure:"client"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	// RateLimit is requests per second for mutating endpoints; 0 disables.
	RateLimit float64    `toml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int        `toml:"burst" mapstructure:"burst"`
	TLS       TLSConfig  `toml:"tls" mapstructure:"tls"`
	Auth      AuthConfig `toml:"auth" mapstructure:"auth"`
}

// AuthConfig enables basic authentication on the API.
type AuthConfig struct {
	Enabled bool        `toml:"enabled" mapstructure:"enabled"`
	Users   []auth.User `toml:"users" mapstructure:"users"`
}

type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	Hosts        []string `toml:"hosts" mapstructure:"hosts"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	Sinks   []string `toml:"sinks" mapstructure:"sinks"`
}

// LaunchConfig controls the local transport.
type LaunchConfig struct {
	InboxDir     string        `toml:"inbox_dir" mapstructure:"inbox_dir"`
	Env          []string      `toml:"env" mapstructure:"env"`
	EnvFiles     []string      `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv     bool          `toml:"use_os_env" mapstructure:"use_os_env"`
	ReadyTimeout time.Duration `toml:"ready_timeout" mapstructure:"ready_timeout"`
	// OutputDir captures stdout/stderr of launched applications when set.
	OutputDir string `toml:"output_dir" mapstructure:"output_dir"`
}

type ClientConfig struct {
	APIURL   string        `toml:"api_url" mapstructure:"api_url"`
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout"`
	Username string        `toml:"username" mapstructure:"username"`
	Password string        `toml:"password" mapstructure:"password"`
	CACert   string        `toml:"ca_cert" mapstructure:"ca_cert"`
	Insecure bool          `toml:"insecure" mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8760")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.burst", 20)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "1.3")
	v.SetDefault("server.tls.hosts", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("launch.inbox_dir", "")
	v.SetDefault("launch.env", []string{})
	v.SetDefault("launch.env_files", []string{})
	v.SetDefault("launch.use_os_env", true)
	v.SetDefault("launch.ready_timeout", 10*time.Second)
	v.SetDefault("launch.output_dir", "")
	v.SetDefault("client.api_url", "")
	v.SetDefault("client.timeout", 90*time.Second)
	v.SetDefault("client.username", "")
	v.SetDefault("client.password", "")
	v.SetDefault("client.ca_cert", "")
	v.SetDefault("client.insecure", false)
}

// Load reads the TOML file at path (optional) and applies APPCONNECT_*
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "", "text", "json", "color":
	default:
		return fmt.Errorf("log.format %q: want text, json or color", c.Log.Format)
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		return errors.New("server.burst must be at least 1 when rate limiting")
	}
	if t := c.Server.TLS; t.Enabled && t.Dir == "" && (t.CertFile == "" || t.KeyFile == "") {
		return errors.New("server.tls needs cert_file and key_file, or dir")
	}
	if c.Server.Auth.Enabled && len(c.Server.Auth.Users) == 0 {
		return errors.New("server.auth.enabled requires at least one [[server.auth.users]] entry")
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		return errors.New("history.enabled requires at least one entry in history.sinks")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == c.Server.Listen && c.Metrics.Listen != "" {
		return errors.New("metrics.listen must differ from server.listen")
	}
	if c.Launch.ReadyTimeout < 0 || c.Client.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// LoggerSettings maps [log] onto the logger package.
func (c *Config) LoggerSettings() logger.Settings {
	return logger.Settings{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// TLSSettings maps [server.tls] onto the tls package.
func (c *Config) TLSSettings() apptls.Settings {
	t := c.Server.TLS
	return apptls.Settings{
		Enabled:      t.Enabled,
		CertFile:     t.CertFile,
		KeyFile:      t.KeyFile,
		Dir:          t.Dir,
		AutoGenerate: t.AutoGenerate,
		MinVersion:   t.MinVersion,
		Hosts:        t.Hosts,
	}
}

// Authenticator returns the API authenticator, or nil when auth is off.
func (c *Config) Authenticator() (*auth.Basic, error) {
	if !c.Server.Auth.Enabled {
		return nil, nil
	}
	return auth.NewBasic(c.Server.Auth.Users)
}

// OutputLog is where launched applications write their output.
func (c *Config) OutputLog() logger.Config {
	return logger.Config{
		Dir:        c.Launch.OutputDir,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// LaunchEnv builds the environment handed to launched applications:
// the OS environment when enabled, then env_files in order, then env.
func (c *Config) LaunchEnv() (*env.Env, error) {
	e := env.New(c.Launch.UseOSEnv)
	for _, p := range c.Launch.EnvFiles {
		if err := e.LoadFile(p); err != nil {
			return nil, fmt.Errorf("launch.env_files %s: %w", p, err)
		}
	}
	e.SetPairs(c.Launch.Env)
	return e, nil
}
