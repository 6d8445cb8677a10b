// ABOUTME: Lifecycle events and counters published by the backend service
// ABOUTME: Consumed by the web status endpoint and the SSE event stream

package backend

import (
	"time"

	"github.com/mauromedda/medassist/internal/action"
)

// EventKind names a backend lifecycle event.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventConnectFailed EventKind = "connect_failed"
	EventInvoked       EventKind = "invoked"
	EventFailed        EventKind = "failed"
	EventShutdown      EventKind = "shutdown"
)

// Event is published on the optional bus in Options.Events.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Action     action.Name `json:"action,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
	PID        int         `json:"pid,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  string      `json:"error_kind,omitempty"`
	At         time.Time   `json:"at"`
}

func newEvent(kind EventKind, name action.Name, d time.Duration, err error) Event {
	ev := Event{Kind: kind, Action: name, DurationMS: d.Milliseconds(), At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		if aerr, ok := err.(*action.Error); ok {
			ev.ErrorKind = aerr.Kind.String()
		}
	}
	return ev
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Connected bool             `json:"connected"`
	PID       int              `json:"pid,omitempty"`
	Spawns    int64            `json:"spawns"`
	Calls     int64            `json:"calls"`
	Running   int64            `json:"running"`
	Failures  map[string]int64 `json:"failures"`
	Uptime    string           `json:"uptime"`
}

// Stats returns counters for status reporting.
func (s *Service) Stats() Stats {
	failures := make(map[string]int64, len(s.failures))
	for k, c := range s.failures {
		if n := c.Load(); n > 0 {
			failures[k.String()] = n
		}
	}
	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Truncate(time.Second)
	}
	return Stats{
		Connected: s.session.Connected(),
		PID:       s.session.PID(),
		Spawns:    s.session.Spawns(),
		Calls:     s.calls.Load(),
		Running:   s.loop.Running(),
		Failures:  failures,
		Uptime:    uptime.String(),
	}
}
