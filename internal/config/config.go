// ABOUTME: Configuration loading and parsing for the coven-chat client
// ABOUTME: Supports TOML or YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "COVEN_CHAT_CONFIG"

// Config represents the complete coven-chat configuration
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Auth    AuthConfig    `toml:"auth" yaml:"auth"`
	Chat    ChatConfig    `toml:"chat" yaml:"chat"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// ServerConfig locates the chat server
type ServerConfig struct {
	// APIURL is the REST root, e.g. https://chat.example.com/api
	APIURL string `toml:"api_url" yaml:"api_url"`
	// WSURL is the realtime endpoint. Derived from APIURL when empty.
	WSURL string `toml:"ws_url" yaml:"ws_url"`

	Timeout    time.Duration `toml:"-" yaml:"-"`
	TimeoutRaw string        `toml:"timeout" yaml:"timeout"`
}

// AuthConfig holds the session credentials
type AuthConfig struct {
	Token string `toml:"token" yaml:"token"`
	// CookieName also sends the token as a cookie, for servers that read it there.
	CookieName string `toml:"cookie_name" yaml:"cookie_name"`
	// JWTSecret enables signature verification of Token when known.
	JWTSecret string `toml:"jwt_secret" yaml:"jwt_secret"`
	// UserID overrides the id read from the token.
	UserID string `toml:"user_id" yaml:"user_id"`
}

// ChatConfig holds conversation engine tuning
type ChatConfig struct {
	Notifications bool `toml:"notifications" yaml:"notifications"`
	RetiredIDs    int  `toml:"retired_ids" yaml:"retired_ids"`

	TypingQuietPeriod time.Duration `toml:"-" yaml:"-"`
	ReconnectMin      time.Duration `toml:"-" yaml:"-"`
	ReconnectMax      time.Duration `toml:"-" yaml:"-"`

	// Raw string values for unmarshaling
	TypingQuietPeriodRaw string `toml:"typing_quiet_period" yaml:"typing_quiet_period"`
	ReconnectMinRaw      string `toml:"reconnect_min" yaml:"reconnect_min"`
	ReconnectMaxRaw      string `toml:"reconnect_max" yaml:"reconnect_max"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
	Path    string `toml:"path" yaml:"path"`
}

// Default returns a Config with every optional field set.
func Default() Config {
	return Config{
		Server: ServerConfig{TimeoutRaw: "30s"},
		Chat: ChatConfig{
			Notifications:        true,
			RetiredIDs:           4096,
			TypingQuietPeriodRaw: "1s",
			ReconnectMinRaw:      "1s",
			ReconnectMaxRaw:      "30s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464", Path: "/metrics"},
	}
}

// DefaultPath returns the config file location.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.toml > ~/.config/coven/chat.toml
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.toml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .yaml or .yml are parsed as YAML, anything else as TOML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(expanded), &cfg)
	default:
		_, err = toml.Decode(expanded, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if cfg.Server.WSURL == "" {
		cfg.Server.WSURL = deriveWSURL(cfg.Server.APIURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// deriveWSURL maps http(s)://host/api to ws(s)://host/ws.
func deriveWSURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String()
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.APIURL == "" {
		return fmt.Errorf("server.api_url is required")
	}
	u, err := url.Parse(c.Server.APIURL)
	if err != nil {
		return fmt.Errorf("server.api_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.api_url must use http or https scheme")
	}

	if c.Server.WSURL == "" {
		return fmt.Errorf("server.ws_url is required")
	}
	ws, err := url.Parse(c.Server.WSURL)
	if err != nil {
		return fmt.Errorf("server.ws_url is not a valid URL: %w", err)
	}
	switch ws.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("server.ws_url must use ws or wss scheme")
	}

	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required")
	}

	if c.Chat.TypingQuietPeriod <= 0 {
		return fmt.Errorf("chat.typing_quiet_period must be positive")
	}
	if c.Chat.ReconnectMin <= 0 {
		return fmt.Errorf("chat.reconnect_min must be positive")
	}
	if c.Chat.ReconnectMax < c.Chat.ReconnectMin {
		return fmt.Errorf("chat.reconnect_max must not be less than chat.reconnect_min")
	}
	if c.Chat.RetiredIDs < 0 {
		return fmt.Errorf("chat.retired_ids must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.timeout", cfg.Server.TimeoutRaw, &cfg.Server.Timeout},
		{"chat.typing_quiet_period", cfg.Chat.TypingQuietPeriodRaw, &cfg.Chat.TypingQuietPeriod},
		{"chat.reconnect_min", cfg.Chat.ReconnectMinRaw, &cfg.Chat.ReconnectMin},
		{"chat.reconnect_max", cfg.Chat.ReconnectMaxRaw, &cfg.Chat.ReconnectMax},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
