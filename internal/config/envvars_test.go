// ABOUTME: Tests for environment variable expansion in config
// ABOUTME: Validates ${VAR} replacement for set, unset, and mixed patterns

package config

import (
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("MED_HOST", "localhost")
	t.Setenv("MED_SCRIPT", "server.py")

	tests := []struct {
		in, want string
	}{
		{"${MED_SCRIPT}", "server.py"},
		{"${DEFINITELY_NOT_SET_12345}", ""},
		{"redis://${MED_HOST}:6379/0", "redis://localhost:6379/0"},
		{"plain string", "plain string"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandEnv(tt.in); got != tt.want {
			t.Errorf("expandEnv(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveEnvVars_SettingsFields(t *testing.T) {
	t.Setenv("MED_PY", "/usr/bin/python3")
	t.Setenv("MED_KEY", "secret")

	s := Defaults()
	s.Server.Command = "${MED_PY} server.py"
	s.Server.Args = []string{"--key=${MED_KEY}"}
	s.Server.Env = []string{"API_KEY=${MED_KEY}"}
	s.History.RedisURL = "redis://${MED_KEY}@localhost"

	ResolveEnvVars(&s)

	if s.Server.Command != "/usr/bin/python3 server.py" {
		t.Errorf("Command = %q", s.Server.Command)
	}
	if s.Server.Args[0] != "--key=secret" || s.Server.Env[0] != "API_KEY=secret" {
		t.Errorf("args/env not expanded: %v %v", s.Server.Args, s.Server.Env)
	}
	if s.History.RedisURL != "redis://secret@localhost" {
		t.Errorf("RedisURL = %q", s.History.RedisURL)
	}
}
