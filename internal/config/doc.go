// Package config handles configuration loading for coven-chat.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.toml
//  3. ~/.config/coven/chat.toml
//
// The format follows the file extension: .yaml and .yml are YAML, anything
// else is TOML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables, which keeps the session token
// out of the file:
//
//	[auth]
//	token = "${COVEN_CHAT_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Example
//
//	[server]
//	api_url = "https://chat.example.com/api"
//	ws_url  = "wss://chat.example.com/ws"   # optional, derived from api_url
//	timeout = "30s"
//
//	[auth]
//	token       = "${COVEN_CHAT_TOKEN}"
//	cookie_name = "jwt"
//
//	[chat]
//	notifications       = true
//	typing_quiet_period = "1s"
//	reconnect_min       = "1s"
//	reconnect_max       = "30s"
//
//	[logging]
//	level  = "info"   # debug, info, warn, error
//	format = "text"   # text or json
//
//	[metrics]
//	enabled = false
//	addr    = "127.0.0.1:9464"
//
// Durations use time.ParseDuration syntax. Load validates the result and
// reports the first problem it finds.
package config
