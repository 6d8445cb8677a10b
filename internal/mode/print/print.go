// ABOUTME: Headless one-shot mode: classify a message, run it, print the outcome
// ABOUTME: Supports text, JSON, and stream-JSON formatters; failures yield ErrFailed

package print

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/intent"
)

// ErrFailed is returned when the action ran but its outcome is an error.
// The error has already been printed.
var ErrFailed = errors.New("action failed")

// Backend runs actions. *backend.Service satisfies it.
type Backend interface {
	InvokeContext(ctx context.Context, name action.Name, args action.Args) action.Outcome
}

// Config configures headless execution.
type Config struct {
	OutputFormat string // "text" (default), "json", "stream-json"
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
}

// Run classifies message and prints the outcome. An empty message is read
// from Stdin.
func Run(ctx context.Context, cfg Config, b Backend, message string) error {
	if strings.TrimSpace(message) == "" && cfg.Stdin != nil {
		data, err := io.ReadAll(cfg.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		message = string(data)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("no message provided")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}

	f, err := newFormatter(cfg)
	if err != nil {
		return err
	}

	name, args := intent.ParseMessageForAction(message)
	f.start(name)
	out := b.InvokeContext(ctx, name, args)
	f.result(name, out)
	f.end()

	if !out.OK() {
		return ErrFailed
	}
	return nil
}

// formatter abstracts output formatting.
type formatter interface {
	start(name action.Name)
	result(name action.Name, out action.Outcome)
	end()
}

func newFormatter(cfg Config) (formatter, error) {
	switch cfg.OutputFormat {
	case "", "text":
		return &textFormatter{out: cfg.Stdout, errOut: cfg.Stderr}, nil
	case "json":
		return &jsonFormatter{out: cfg.Stdout}, nil
	case "stream-json":
		return &streamJSONFormatter{out: cfg.Stdout}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.OutputFormat)
	}
}

// textFormatter writes the reply to stdout and errors to stderr.
type textFormatter struct {
	out    io.Writer
	errOut io.Writer
}

func (f *textFormatter) start(action.Name) {}
func (f *textFormatter) end()              {}
func (f *textFormatter) result(_ action.Name, out action.Outcome) {
	if !out.OK() {
		fmt.Fprintf(f.errOut, "error: %s\n", out.Err.Message)
		return
	}
	fmt.Fprintln(f.out, out.Text)
}

// jsonFormatter writes a single JSON object at the end.
type jsonFormatter struct {
	out    io.Writer
	output jsonOutput
}

type jsonOutput struct {
	Action  action.Name `json:"action"`
	Success bool        `json:"success"`
	Text    string      `json:"text,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

func (f *jsonFormatter) start(name action.Name) { f.output.Action = name }
func (f *jsonFormatter) result(_ action.Name, out action.Outcome) {
	f.output.Success = out.OK()
	if out.OK() {
		f.output.Text = out.Text
		return
	}
	f.output.Error = out.Err.Message
	f.output.Kind = out.Err.Kind.String()
}
func (f *jsonFormatter) end() {
	data, _ := json.Marshal(f.output)
	fmt.Fprintln(f.out, string(data))
}

// streamJSONFormatter writes one JSON line per event.
type streamJSONFormatter struct {
	out io.Writer
}

type streamEvent struct {
	Type   string      `json:"type"`
	Action action.Name `json:"action,omitempty"`
	Text   string      `json:"text,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (f *streamJSONFormatter) start(name action.Name) {
	f.write(streamEvent{Type: "start", Action: name})
}

func (f *streamJSONFormatter) result(name action.Name, out action.Outcome) {
	if !out.OK() {
		f.write(streamEvent{Type: "error", Action: name, Error: out.Err.Message})
		return
	}
	f.write(streamEvent{Type: "text", Action: name, Text: out.Text})
}

func (f *streamJSONFormatter) end() {
	f.write(streamEvent{Type: "end"})
}

func (f *streamJSONFormatter) write(evt streamEvent) {
	data, _ := json.Marshal(evt)
	fmt.Fprintln(f.out, string(data))
}
