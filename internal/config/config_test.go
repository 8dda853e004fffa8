// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers TOML and YAML loading, env var expansion, defaults, and validation

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "chat.toml", `
[server]
api_url = "https://chat.example.com/api"
ws_url = "wss://rt.example.com/socket"
timeout = "10s"

[auth]
token = "tok"
cookie_name = "jwt"

[chat]
notifications = false
typing_quiet_period = "1500ms"
reconnect_min = "2s"
reconnect_max = "1m"
retired_ids = 100

[logging]
level = "debug"
format = "json"

[metrics]
enabled = true
addr = ":9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.APIURL != "https://chat.example.com/api" {
		t.Errorf("Server.APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Server.WSURL != "wss://rt.example.com/socket" {
		t.Errorf("Server.WSURL = %q", cfg.Server.WSURL)
	}
	if cfg.Server.Timeout != 10*time.Second {
		t.Errorf("Server.Timeout = %v, want 10s", cfg.Server.Timeout)
	}
	if cfg.Auth.CookieName != "jwt" {
		t.Errorf("Auth.CookieName = %q, want jwt", cfg.Auth.CookieName)
	}
	if cfg.Chat.Notifications {
		t.Error("Chat.Notifications should be false")
	}
	if cfg.Chat.TypingQuietPeriod != 1500*time.Millisecond {
		t.Errorf("Chat.TypingQuietPeriod = %v, want 1.5s", cfg.Chat.TypingQuietPeriod)
	}
	if cfg.Chat.ReconnectMin != 2*time.Second || cfg.Chat.ReconnectMax != time.Minute {
		t.Errorf("reconnect = %v..%v, want 2s..1m", cfg.Chat.ReconnectMin, cfg.Chat.ReconnectMax)
	}
	if cfg.Chat.RetiredIDs != 100 {
		t.Errorf("Chat.RetiredIDs = %d, want 100", cfg.Chat.RetiredIDs)
	}
	if cfg.Logging.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.Logging.SlogLevel())
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9000" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, "chat.yaml", `
server:
  api_url: "http://localhost:3000/api"
auth:
  token: "tok"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.WSURL != "ws://localhost:3000/ws" {
		t.Errorf("Server.WSURL = %q, want derived ws://localhost:3000/ws", cfg.Server.WSURL)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want 30s", cfg.Server.Timeout)
	}
	if !cfg.Chat.Notifications {
		t.Error("Chat.Notifications should default to true")
	}
	if cfg.Chat.TypingQuietPeriod != time.Second {
		t.Errorf("Chat.TypingQuietPeriod = %v, want 1s", cfg.Chat.TypingQuietPeriod)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should be disabled by default")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHAT_TOKEN", "secret-token")
	t.Setenv("TEST_CHAT_HOST", "chat.internal")

	path := writeConfig(t, "chat.toml", `
[server]
api_url = "https://${TEST_CHAT_HOST}/api"

[auth]
token = "${TEST_CHAT_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Token != "secret-token" {
		t.Errorf("Auth.Token = %q, want secret-token", cfg.Auth.Token)
	}
	if cfg.Server.WSURL != "wss://chat.internal/ws" {
		t.Errorf("Server.WSURL = %q, want wss://chat.internal/ws", cfg.Server.WSURL)
	}
}

func TestLoad_UnsetEnvVarFailsValidation(t *testing.T) {
	path := writeConfig(t, "chat.toml", `
[server]
api_url = "https://chat.example.com/api"

[auth]
token = "${TEST_CHAT_TOKEN_THAT_IS_NOT_SET}"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "auth.token is required") {
		t.Errorf("Load() error = %v, want auth.token is required", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "missing api url",
			file:    "c.toml",
			content: "[auth]\ntoken = \"t\"\n",
			wantErr: "server.api_url is required",
		},
		{
			name:    "bad api scheme",
			file:    "c.toml",
			content: "[server]\napi_url = \"ftp://x\"\n[auth]\ntoken = \"t\"\n",
			wantErr: "http or https",
		},
		{
			name:    "bad ws scheme",
			file:    "c.toml",
			content: "[server]\napi_url = \"http://x\"\nws_url = \"tcp://x\"\n[auth]\ntoken = \"t\"\n",
			wantErr: "ws or wss",
		},
		{
			name:    "bad duration",
			file:    "c.toml",
			content: "[server]\napi_url = \"http://x\"\n[auth]\ntoken = \"t\"\n[chat]\ntyping_quiet_period = \"soon\"\n",
			wantErr: "chat.typing_quiet_period",
		},
		{
			name:    "reconnect max below min",
			file:    "c.toml",
			content: "[server]\napi_url = \"http://x\"\n[auth]\ntoken = \"t\"\n[chat]\nreconnect_min = \"10s\"\nreconnect_max = \"1s\"\n",
			wantErr: "chat.reconnect_max",
		},
		{
			name:    "bad log level",
			file:    "c.yml",
			content: "server:\n  api_url: http://x\nauth:\n  token: t\nlogging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			file:    "c.yml",
			content: "server:\n  api_url: http://x\nauth:\n  token: t\nlogging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "metrics without addr",
			file:    "c.toml",
			content: "[server]\napi_url = \"http://x\"\n[auth]\ntoken = \"t\"\n[metrics]\nenabled = true\naddr = \"\"\n",
			wantErr: "metrics.addr",
		},
		{
			name:    "invalid toml",
			file:    "c.toml",
			content: "[server\n",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid yaml",
			file:    "c.yaml",
			content: "server: [\n",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() should have returned an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading config file", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/coven/chat.yaml")
	if got := DefaultPath(); got != "/etc/coven/chat.yaml" {
		t.Errorf("DefaultPath() = %q, want env override", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "coven", "chat.toml") {
		t.Errorf("DefaultPath() = %q, want XDG path", got)
	}
}

func TestDeriveWSURL(t *testing.T) {
	tests := map[string]string{
		"https://chat.example.com/api":  "wss://chat.example.com/ws",
		"http://localhost:3000/api?x=1": "ws://localhost:3000/ws",
		"not a url":                     "",
	}
	for in, want := range tests {
		if got := deriveWSURL(in); got != want {
			t.Errorf("deriveWSURL(%q) = %q, want %q", in, got, want)
		}
	}
}
