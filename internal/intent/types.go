// ABOUTME: Classification result types for routing user messages to backend actions
// ABOUTME: Signals record which prefix, keyword, or phrase drove the decision

package intent

import (
	"fmt"
	"strings"

	"github.com/mauromedda/medassist/internal/action"
)

// SignalKind names what kind of text matched.
type SignalKind int

const (
	SignalPrefix SignalKind = iota
	SignalKeyword
	SignalPhrase
)

// String returns the human-readable name of the signal kind.
func (k SignalKind) String() string {
	switch k {
	case SignalPrefix:
		return "prefix"
	case SignalKeyword:
		return "keyword"
	case SignalPhrase:
		return "phrase"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Signal is one piece of matched text.
type Signal struct {
	Kind SignalKind
	Text string
}

// Classification holds the routed action and the signals behind it.
type Classification struct {
	Action  action.Name
	Args    action.Args
	Signals []Signal
}

// String summarises the classification for debug logs.
func (c Classification) String() string {
	if len(c.Signals) == 0 {
		return string(c.Action)
	}
	parts := make([]string, len(c.Signals))
	for i, s := range c.Signals {
		parts[i] = s.Kind.String() + ":" + s.Text
	}
	return string(c.Action) + " [" + strings.Join(parts, ", ") + "]"
}
