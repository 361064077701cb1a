package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	// Endpoints are the candidate chat endpoints, tried in order:
	// secure primary, secure alternate, insecure last resort.
	Endpoints []string `toml:"endpoints"`

	// RESTBaseURL is the base URL of the history/search REST API.
	RESTBaseURL string `toml:"rest_base_url"`

	// ListenAddr is the local introspection HTTP server address.
	ListenAddr string `toml:"listen_addr"`

	ConnectTimeoutSec  int `toml:"connect_timeout_sec"`
	ReconnectBaseMs    int `toml:"reconnect_base_ms"`
	ReconnectMax       int `toml:"reconnect_max_attempts"`
	TypingExpiryMs     int `toml:"typing_expiry_ms"`
	ConversationsLimit int `toml:"conversations_limit"`
	MessagesLimit      int `toml:"messages_limit"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Endpoints: []string{
			"https://chat.example.com",
			"https://chat-alt.example.com",
			"http://chat.example.com",
		},
		RESTBaseURL:        "https://api.example.com/v1",
		ListenAddr:         "127.0.0.1:7430",
		ConnectTimeoutSec:  20,
		ReconnectBaseMs:    1000,
		ReconnectMax:       5,
		TypingExpiryMs:     4000,
		ConversationsLimit: 50,
		MessagesLimit:      50,
	}
}

// Load reads config from the given path and applies defaults for unset
// fields. Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
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

func (c *Config) applyDefaults() {
	def := Default()
	if c.DefaultSession == "" {
		c.DefaultSession = def.DefaultSession
	}
	if len(c.Endpoints) == 0 {
		c.Endpoints = def.Endpoints
	}
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = def.RESTBaseURL
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.ConnectTimeoutSec <= 0 {
		c.ConnectTimeoutSec = def.ConnectTimeoutSec
	}
	if c.ReconnectBaseMs <= 0 {
		c.ReconnectBaseMs = def.ReconnectBaseMs
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = def.ReconnectMax
	}
	if c.TypingExpiryMs <= 0 {
		c.TypingExpiryMs = def.TypingExpiryMs
	}
	if c.ConversationsLimit <= 0 {
		c.ConversationsLimit = def.ConversationsLimit
	}
	if c.MessagesLimit <= 0 {
		c.MessagesLimit = def.MessagesLimit
	}
}

// ConnectTimeout returns the per-candidate connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// ReconnectBase returns the initial reconnect backoff delay.
func (c *Config) ReconnectBase() time.Duration {
	return time.Duration(c.ReconnectBaseMs) * time.Millisecond
}

// TypingExpiry returns how long a typing indicator lives without refresh.
func (c *Config) TypingExpiry() time.Duration {
	return time.Duration(c.TypingExpiryMs) * time.Millisecond
}
