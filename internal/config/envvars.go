// ABOUTME: Environment variable expansion in config string fields
// ABOUTME: Replaces ${VAR} patterns with os.Getenv values; unset vars become empty

package config

import (
	"os"
	"regexp"
)

var envVarPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// ResolveEnvVars expands ${VAR} patterns in the server and history fields
// of Settings.
func ResolveEnvVars(s *Settings) {
	s.Server.Command = expandEnv(s.Server.Command)
	s.Server.Dir = expandEnv(s.Server.Dir)
	for i, a := range s.Server.Args {
		s.Server.Args[i] = expandEnv(a)
	}
	for i, kv := range s.Server.Env {
		s.Server.Env[i] = expandEnv(kv)
	}
	s.History.RedisURL = expandEnv(s.History.RedisURL)
	s.PromptsDir = expandEnv(s.PromptsDir)
}

// expandEnv replaces ${VAR} with os.Getenv(VAR). Unset vars become "".
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
