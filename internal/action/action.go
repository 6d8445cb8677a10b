// ABOUTME: Action vocabulary shared by front-ends and the backend facade
// ABOUTME: Names, loosely typed arguments with typed accessors, and Outcome/error kinds

package action

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Name identifies a backend action.
type Name string

// Known actions.
const (
	Chat            Name = "chat"
	AnalyzeSymptoms Name = "analyze_symptoms"
	ClearHistory    Name = "clear_history"
	GetSummary      Name = "get_summary"
	GetGreeting     Name = "get_greeting"
	GetServerInfo   Name = "get_server_info"
)

// Names returns every known action in a stable order.
func Names() []Name {
	return []Name{Chat, AnalyzeSymptoms, ClearHistory, GetSummary, GetGreeting, GetServerInfo}
}

// Parse maps a string to a known Name.
func Parse(s string) (Name, bool) {
	n := Name(strings.TrimSpace(s))
	for _, known := range Names() {
		if n == known {
			return n, true
		}
	}
	return n, false
}

// Args carries action arguments as decoded from forms or JSON bodies.
type Args map[string]any

// String returns the string value for key, or def when absent or empty.
func (a Args) String(key, def string) string {
	switch v := a[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case fmt.Stringer:
		if s := v.String(); s != "" {
			return s
		}
	}
	return def
}

// Float returns a numeric value for key, or def.
func (a Args) Float(key string, def float64) float64 {
	if f, ok := toFloat(a[key]); ok {
		return f
	}
	return def
}

// Int returns an integer value for key, or def.
func (a Args) Int(key string, def int) int {
	if n, ok := a.OptionalInt(key); ok {
		return n
	}
	return def
}

// OptionalInt returns the integer value for key and whether one was given.
// Non-integral numbers and unparsable strings count as not given.
func (a Args) OptionalInt(key string) (int, bool) {
	f, ok := toFloat(a[key])
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
