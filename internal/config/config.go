package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/googol/statsview/internal/logging"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Stats    StatsConfig    `yaml:"stats"`
	Indexing IndexingConfig `yaml:"indexing"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	// Origin is sent as the Origin header on the WebSocket handshake. The
	// server only accepts its configured origins.
	Origin string `yaml:"origin"`
}

type StatsConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	Topic              string        `yaml:"topic"`
	RefreshDestination string        `yaml:"refresh_destination"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	AutoConnect        bool          `yaml:"auto_connect"`
}

type IndexingConfig struct {
	Path  string `yaml:"path"`
	Query string `yaml:"query"`
	// Timeout of zero leaves the HTTP transport default in place.
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8080",
		},
		Stats: StatsConfig{
			Endpoint:           "/stats-websocket/websocket",
			Topic:              "/topic/stats",
			RefreshDestination: "/app/topic/stats",
			HandshakeTimeout:   10 * time.Second,
			WriteTimeout:       10 * time.Second,
			PingInterval:       30 * time.Second,
			PongTimeout:        60 * time.Second,
			AutoConnect:        true,
		},
		Indexing: IndexingConfig{
			Path: "/hackernews/index",
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the client cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || c.Server.BaseURL == "" {
		return fmt.Errorf("%w: server.base_url %q", ErrInvalidConfig, c.Server.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: server.base_url must be http or https, got %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: server.base_url has no host", ErrInvalidConfig)
	}

	for name, v := range map[string]string{
		"stats.endpoint":            c.Stats.Endpoint,
		"stats.topic":               c.Stats.Topic,
		"stats.refresh_destination": c.Stats.RefreshDestination,
		"indexing.path":             c.Indexing.Path,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, name)
		}
	}
	if c.Stats.Topic == c.Stats.RefreshDestination {
		return fmt.Errorf("%w: stats.refresh_destination must differ from stats.topic", ErrInvalidConfig)
	}

	for name, d := range map[string]time.Duration{
		"stats.handshake_timeout": c.Stats.HandshakeTimeout,
		"stats.write_timeout":     c.Stats.WriteTimeout,
		"stats.ping_interval":     c.Stats.PingInterval,
		"stats.pong_timeout":      c.Stats.PongTimeout,
		"indexing.timeout":        c.Indexing.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidConfig, name)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// StatsURL derives the WebSocket URL of the stats endpoint from the base URL:
// http://host:port → ws://host:port/<endpoint>.
func (c *Config) StatsURL() (string, error) {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: server.base_url: %v", ErrInvalidConfig, err)
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	out := url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   joinPath(u.Path, c.Stats.Endpoint),
	}
	return out.String(), nil
}

// IndexURL is the absolute URL of the indexing endpoint.
func (c *Config) IndexURL() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/" + strings.TrimLeft(c.Indexing.Path, "/")
}

func joinPath(base, p string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}
