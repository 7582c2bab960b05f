// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the complete fieldsync configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	API        APIConfig        `yaml:"api" json:"api"`
	Credential CredentialConfig `yaml:"credential" json:"credential"`
	Presence   PresenceConfig   `yaml:"presence" json:"presence"`
	Transport  TransportConfig  `yaml:"transport" json:"transport"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// ServerConfig addresses the collaboration server.
type ServerConfig struct {
	// Scheme is "wss:" or "ws:". Default: wss:
	Scheme string `yaml:"scheme" json:"scheme"`

	// Host is the collaboration server host, optionally with port.
	Host string `yaml:"host" json:"host"`

	// SpaceID is the space whose documents are edited.
	SpaceID string `yaml:"space_id" json:"space_id"`
}

// APIConfig addresses the content API used to fetch entities, content
// types and locales.
type APIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// CredentialConfig selects the access token. Token takes precedence
// over TokenFile.
type CredentialConfig struct {
	Token     string `yaml:"token" json:"token"`
	TokenFile string `yaml:"token_file" json:"token_file"`

	// UserID identifies this user in presence messages. Defaults to the
	// token's JWT subject when the token is a JWT.
	UserID string `yaml:"user_id" json:"user_id"`
}

// PresenceConfig tunes the awareness protocol.
type PresenceConfig struct {
	// FocusThrottle suppresses repeated focus announcements for the
	// same field. Default: 10s
	FocusThrottle Duration `yaml:"focus_throttle" json:"focus_throttle"`

	// PingTimeout evicts peers that have not been heard from.
	// Default: 60s
	PingTimeout Duration `yaml:"ping_timeout" json:"ping_timeout"`
}

// TransportConfig tunes the websocket transport.
type TransportConfig struct {
	// Codec is "json" or "cbor". Default: json
	Codec string `yaml:"codec" json:"codec"`

	// ReconnectMin and ReconnectMax bound the exponential reconnect
	// delay. Defaults: 1s and 30s
	ReconnectMin Duration `yaml:"reconnect_min" json:"reconnect_min"`
	ReconnectMax Duration `yaml:"reconnect_max" json:"reconnect_max"`

	// HandshakeTimeout bounds the websocket dial and auth exchange.
	// Default: 10s
	HandshakeTimeout Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level" json:"level"`
}

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the configuration every file is merged into.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Scheme: "wss:"},
		Presence: PresenceConfig{
			FocusThrottle: Duration(10 * time.Second),
			PingTimeout:   Duration(60 * time.Second),
		},
		Transport: TransportConfig{
			Codec:            "json",
			ReconnectMin:     Duration(time.Second),
			ReconnectMax:     Duration(30 * time.Second),
			HandshakeTimeout: Duration(10 * time.Second),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads the file named by FIELDSYNC_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("FIELDSYNC_CONFIG")
	if path == "" {
		return nil, errors.New("FIELDSYNC_CONFIG environment variable not set; " +
			"set it to the path of your fieldsync.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Server.Host = expandVars(c.Server.Host)
	c.Server.SpaceID = expandVars(c.Server.SpaceID)
	c.API.BaseURL = expandVars(c.API.BaseURL)
	c.Credential.Token = expandVars(c.Credential.Token)
	c.Credential.TokenFile = expandVars(c.Credential.TokenFile)
	c.Credential.UserID = expandVars(c.Credential.UserID)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Scheme != "ws:" && c.Server.Scheme != "wss:" {
		errs = append(errs, fmt.Errorf("server.scheme must be ws: or wss:, got %q", c.Server.Scheme))
	}
	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if c.Server.SpaceID == "" {
		errs = append(errs, errors.New("server.space_id is required"))
	}
	if c.Presence.FocusThrottle.Std() <= 0 {
		errs = append(errs, errors.New("presence.focus_throttle must be positive"))
	}
	if c.Presence.PingTimeout.Std() <= 0 {
		errs = append(errs, errors.New("presence.ping_timeout must be positive"))
	}
	if c.Transport.Codec != "json" && c.Transport.Codec != "cbor" {
		errs = append(errs, fmt.Errorf("transport.codec must be json or cbor, got %q", c.Transport.Codec))
	}
	if c.Transport.ReconnectMin.Std() <= 0 || c.Transport.ReconnectMax < c.Transport.ReconnectMin {
		errs = append(errs, errors.New("transport.reconnect_min must be positive and not exceed reconnect_max"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
