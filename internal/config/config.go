// Package config loads the bridge configuration from a YAML file, with
// environment overrides for the secrets, and resolves it into the
// session config the core consumes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatwire/ircbridge/internal/irc"
)

// Config holds all bridge configuration.
type Config struct {
	Server     string   `yaml:"server"`
	Port       int      `yaml:"port"`
	TLS        bool     `yaml:"tls"`
	Nick       string   `yaml:"nick"`
	Username   string   `yaml:"username"`
	RealName   string   `yaml:"real_name"`
	ServerPass string   `yaml:"server_pass"`
	Channels   []string `yaml:"channels"`

	NickservService string `yaml:"nickserv_service"`
	NickservPass    string `yaml:"nickserv_pass"`

	// AutoReconnect defaults to true when absent from the file.
	AutoReconnect         *bool `yaml:"auto_reconnect"`
	ConnectTimeoutSeconds int   `yaml:"connect_timeout_seconds"`
	ReconnectDelaySeconds int   `yaml:"reconnect_delay_seconds"`
	ChunkLimit            int   `yaml:"chunk_limit"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads and parses a YAML configuration file. The secrets may be
// supplied through IRCBRIDGE_SERVER_PASS and IRCBRIDGE_NICKSERV_PASS
// instead of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("IRCBRIDGE_SERVER_PASS"); v != "" {
		cfg.ServerPass = v
	}
	if v := os.Getenv("IRCBRIDGE_NICKSERV_PASS"); v != "" {
		cfg.NickservPass = v
	}

	if cfg.Server == "" {
		return nil, fmt.Errorf("config: server is required")
	}
	if cfg.Nick == "" {
		return nil, fmt.Errorf("config: nick is required")
	}

	return &cfg, nil
}

// Session resolves the file values into the core's session config.
// Remaining zero values fall to the core's own defaults.
func (c *Config) Session() irc.SessionConfig {
	autoReconnect := true
	if c.AutoReconnect != nil {
		autoReconnect = *c.AutoReconnect
	}

	return irc.SessionConfig{
		Host:            c.Server,
		Port:            c.Port,
		TLS:             c.TLS,
		Nick:            c.Nick,
		Username:        c.Username,
		RealName:        c.RealName,
		ServerPass:      c.ServerPass,
		Channels:        append([]string(nil), c.Channels...),
		NickservPass:    c.NickservPass,
		NickservService: c.NickservService,
		AutoReconnect:   autoReconnect,
		ConnectTimeout:  time.Duration(c.ConnectTimeoutSeconds) * time.Second,
		ReconnectDelay:  time.Duration(c.ReconnectDelaySeconds) * time.Second,
		ChunkLimit:      c.ChunkLimit,
	}
}
