// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Presence.FocusThrottle.Std() != 10*time.Second {
		t.Errorf("expected focus_throttle=10s, got %v", cfg.Presence.FocusThrottle.Std())
	}
	if cfg.Presence.PingTimeout.Std() != 60*time.Second {
		t.Errorf("expected ping_timeout=60s, got %v", cfg.Presence.PingTimeout.Std())
	}
	if cfg.Server.Scheme != "wss:" {
		t.Errorf("expected scheme=wss:, got %s", cfg.Server.Scheme)
	}
}

func TestLoad_RequiresEnvironment(t *testing.T) {
	t.Setenv("FIELDSYNC_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when FIELDSYNC_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "FIELDSYNC_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	t.Setenv("FIELDSYNC_TEST_SPACE", "space-from-env")
	path := writeConfig(t, "fieldsync.yaml", `
server:
  scheme: ws:
  host: localhost:8000
  space_id: ${FIELDSYNC_TEST_SPACE}
credential:
  token: ${FIELDSYNC_TEST_UNSET:-fallback-token}
presence:
  focus_throttle: 2s
transport:
  codec: cbor
log:
  level: debug
`)
	t.Setenv("FIELDSYNC_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.SpaceID != "space-from-env" {
		t.Errorf("space_id = %q, want expansion from environment", cfg.Server.SpaceID)
	}
	if cfg.Credential.Token != "fallback-token" {
		t.Errorf("token = %q, want default from ${VAR:-default}", cfg.Credential.Token)
	}
	if cfg.Presence.FocusThrottle.Std() != 2*time.Second {
		t.Errorf("focus_throttle = %v", cfg.Presence.FocusThrottle.Std())
	}
	if cfg.Presence.PingTimeout.Std() != 60*time.Second {
		t.Errorf("ping_timeout = %v, want default kept", cfg.Presence.PingTimeout.Std())
	}
	if cfg.Transport.Codec != "cbor" {
		t.Errorf("codec = %q", cfg.Transport.Codec)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, %v", level, err)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "fieldsync.jsonc", `{
  // collaboration endpoint
  "server": {"host": "collab.example.com", "space_id": "abc",},
  "presence": {"ping_timeout": "90s"},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Server.Host != "collab.example.com" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Presence.PingTimeout.Std() != 90*time.Second {
		t.Errorf("ping_timeout = %v", cfg.Presence.PingTimeout.Std())
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Scheme = "http:"
	cfg.Transport.Codec = "xml"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"server.scheme", "server.host", "server.space_id", "transport.codec", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := writeConfig(t, "fieldsync.yaml", `
server: {host: h, space_id: s}
presence: {focus_throttle: soon}
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
