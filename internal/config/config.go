package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.hemma/config.toml.
type Config struct {
	DefaultSession string       `toml:"default_session"`
	Server         ServerConfig `toml:"server"`
	Stream         StreamConfig `toml:"stream"`
	Chat           ChatConfig   `toml:"chat"`
}

// ServerConfig holds marketplace API endpoints and account identity.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	// SelfID is the account's participant id. Chat echoes carrying this
	// sender id update previews without touching unread counters.
	SelfID string `toml:"self_id"`
}

// StreamConfig tunes the notification stream client.
type StreamConfig struct {
	// HeartbeatTimeoutSecs is the window without any server activity
	// (data or heartbeat comment) after which the stream is considered
	// dead and redialed. Long enough to tolerate normal idle periods.
	HeartbeatTimeoutSecs int `toml:"heartbeat_timeout_secs"`
}

// ChatConfig tunes the chat transport client.
type ChatConfig struct {
	// ReconnectDelaySecs is the fixed delay between redial attempts.
	ReconnectDelaySecs int `toml:"reconnect_delay_secs"`
}

const (
	defaultHeartbeatTimeoutSecs = 150
	defaultReconnectDelaySecs   = 5
)

// Load reads config from the given path. Returns zero config and error if file missing.
// Missing tuning values are filled with defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with all tuning values set to their defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Stream.HeartbeatTimeoutSecs <= 0 {
		c.Stream.HeartbeatTimeoutSecs = defaultHeartbeatTimeoutSecs
	}
	if c.Chat.ReconnectDelaySecs <= 0 {
		c.Chat.ReconnectDelaySecs = defaultReconnectDelaySecs
	}
}

// HeartbeatTimeout returns the stream heartbeat window as a duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Stream.HeartbeatTimeoutSecs) * time.Second
}

// ReconnectDelay returns the chat redial delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Chat.ReconnectDelaySecs) * time.Second
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
