// ABOUTME: Human-readable rendering of effective configuration
// ABOUTME: Used by "config explain"; "config show" prints the same settings as YAML

package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Explain renders a human-readable summary of the effective settings,
// grouped by section. source is the config file in use, or "".
func Explain(s *Settings, source string) string {
	if s == nil {
		d := Defaults()
		s = &d
	}

	var b strings.Builder

	b.WriteString("=== Source ===\n")
	if source == "" {
		b.WriteString("  File:        (defaults and environment only)\n")
	} else {
		fmt.Fprintf(&b, "  File:        %s\n", source)
	}
	b.WriteString("\n")

	b.WriteString("=== Server ===\n")
	fmt.Fprintf(&b, "  Command:     %s\n", strings.Join(s.Argv(), " "))
	if s.Server.Dir != "" {
		fmt.Fprintf(&b, "  Dir:         %s\n", s.Server.Dir)
	}
	if len(s.Server.Env) > 0 {
		fmt.Fprintf(&b, "  Env:         %d variable(s)\n", len(s.Server.Env))
	}
	fmt.Fprintf(&b, "  Client:      %s/%s\n", s.Server.ClientName, s.Server.ClientVersion)
	b.WriteString("\n")

	b.WriteString("=== Backend ===\n")
	fmt.Fprintf(&b, "  CallTimeout: %s\n", s.Backend.CallTimeout)
	fmt.Fprintf(&b, "  Shutdown:    %s\n", s.Backend.ShutdownTimeout)
	fmt.Fprintf(&b, "  Temperature: %.2f\n", s.Backend.Temperature)
	fmt.Fprintf(&b, "  MaxTokens:   %d\n", s.Backend.MaxTokens)
	b.WriteString("\n")

	b.WriteString("=== Web ===\n")
	fmt.Fprintf(&b, "  Listen:      %s\n", s.Web.Listen)
	fmt.Fprintf(&b, "  MaxConns:    %d\n", s.Web.MaxConns)
	fmt.Fprintf(&b, "  History:     %s, %d chars\n", orDefault(s.History.Backend, "memory"), s.Web.MaxHistoryChars)
	b.WriteString("\n")

	b.WriteString("=== Log ===\n")
	fmt.Fprintf(&b, "  Level:       %s\n", s.Log.Level)
	fmt.Fprintf(&b, "  Format:      %s\n", s.Log.Format)

	return b.String()
}

// YAML renders the settings as a YAML document.
func YAML(s *Settings) ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
