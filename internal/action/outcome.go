// ABOUTME: Outcome of an action: exactly one of reply text or a kinded error
// ABOUTME: Error kinds distinguish spawn, transport, protocol, shape, timeout, and unknown action

package action

import (
	"encoding/json"
	"fmt"
)

// Kind classifies why an action failed.
type Kind int

const (
	KindInternal Kind = iota
	KindSpawn
	KindTransport
	KindProtocol
	KindShape
	KindTimeout
	KindUnknownAction
)

var kindNames = map[Kind]string{
	KindInternal:      "internal",
	KindSpawn:         "spawn",
	KindTransport:     "transport",
	KindProtocol:      "protocol",
	KindShape:         "shape",
	KindTimeout:       "timeout",
	KindUnknownAction: "unknown_action",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinds lists every kind, for metrics.
func Kinds() []Kind {
	return []Kind{KindInternal, KindSpawn, KindTransport, KindProtocol, KindShape, KindTimeout, KindUnknownAction}
}

// Error is a user-presentable failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Outcome holds the reply text, or Err when the action failed.
type Outcome struct {
	Text string
	Err  *Error
}

// Success returns a successful Outcome.
func Success(text string) Outcome {
	return Outcome{Text: text}
}

// Failure returns a failed Outcome.
func Failure(kind Kind, msg string) Outcome {
	return Outcome{Err: &Error{Kind: kind, Message: msg}}
}

// Failuref is Failure with formatting.
func Failuref(kind Kind, format string, args ...any) Outcome {
	return Failure(kind, fmt.Sprintf(format, args...))
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Message returns the text or the error message.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Message
	}
	return o.Text
}

type outcomeJSON struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// MarshalJSON encodes {"text":...} or {"error":...,"kind":...}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil {
		return json.Marshal(outcomeJSON{Error: o.Err.Message, Kind: o.Err.Kind.String()})
	}
	return json.Marshal(outcomeJSON{Text: o.Text})
}
