// ABOUTME: Fake line-delimited JSON-RPC server for helper-process tests
// ABOUTME: Re-executes the test binary as the subprocess and records every received line

// Package rpctest provides a scriptable stand-in for the backend subprocess.
//
// A test package declares
//
//	func TestHelperProcess(t *testing.T) { rpctest.ServeIfHelper() }
//
// and passes rpctest.Command(mode, recordPath) as the server command.
package rpctest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Mode selects the fake server's behaviour.
type Mode string

const (
	// ModeEcho answers tools and resources with deterministic text.
	ModeEcho Mode = "echo"
	// ModeHandshakeError rejects initialize with an error envelope.
	ModeHandshakeError Mode = "handshake-error"
	// ModeCloseAfterInit closes its output on the first post-handshake request.
	ModeCloseAfterInit Mode = "close-after-init"
	// ModeHang completes the handshake and never answers again.
	ModeHang Mode = "hang"
	// ModeMismatch answers with the wrong id.
	ModeMismatch Mode = "mismatch"
	// ModeNotifyFirst emits a server notification before every reply.
	ModeNotifyFirst Mode = "notify-first"
)

// SpawnMarker is the record line written when a fake process starts.
const SpawnMarker = "#spawn"

// SlowDelay is how long the "slow" tool takes to answer.
const SlowDelay = 1500 * time.Millisecond

const helperMarker = "rpctest"

// Command returns argv re-executing the current test binary as a fake
// server. record may be empty.
func Command(mode Mode, record string) []string {
	return []string{os.Args[0], "-test.run=^TestHelperProcess$", "--", helperMarker, string(mode), record}
}

// ServeIfHelper runs the fake server and exits when the process was started
// by Command. Otherwise it returns immediately.
func ServeIfHelper() {
	i := slices.Index(os.Args, "--")
	if i < 0 || len(os.Args) < i+3 || os.Args[i+1] != helperMarker {
		return
	}
	record := ""
	if len(os.Args) > i+3 {
		record = os.Args[i+3]
	}
	if err := Serve(os.Stdin, os.Stdout, Mode(os.Args[i+2]), record); err != nil {
		fmt.Fprintln(os.Stderr, "rpctest:", err)
		os.Exit(1)
	}
	os.Exit(0)
}

type message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Serve reads requests from in until EOF and writes replies to out.
func Serve(in io.Reader, out io.Writer, mode Mode, record string) error {
	rec, err := openRecord(record)
	if err != nil {
		return err
	}
	defer rec.Close()
	rec.line(SpawnMarker)

	w := &lineWriter{w: out}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	initialized := false
	for scanner.Scan() {
		raw := scanner.Text()
		rec.line(raw)

		var msg message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			w.write(map[string]any{"jsonrpc": "2.0", "id": nil, "error": map[string]any{"code": -32700, "message": "parse error"}})
			continue
		}
		if len(msg.ID) == 0 {
			continue
		}

		if msg.Method == "initialize" {
			if mode == ModeHandshakeError {
				w.reply(msg.ID, nil, &rpcError{Code: -32603, Message: "initialize refused"})
				continue
			}
			initialized = true
			w.reply(msg.ID, map[string]any{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "rpctest", "version": "0.0.1"},
			}, nil)
			continue
		}
		if !initialized {
			w.reply(msg.ID, nil, &rpcError{Code: -32002, Message: "not initialized"})
			continue
		}

		switch mode {
		case ModeCloseAfterInit:
			if c, ok := out.(io.Closer); ok {
				_ = c.Close()
			}
			_, _ = io.Copy(io.Discard, in)
			return nil
		case ModeHang:
			continue
		case ModeMismatch:
			w.write(map[string]any{"jsonrpc": "2.0", "id": 100000, "result": map[string]any{}})
			continue
		case ModeNotifyFirst:
			w.write(map[string]any{"jsonrpc": "2.0", "method": "notifications/message", "params": map[string]any{"level": "info"}})
		}

		result, rerr := handle(msg)
		w.reply(msg.ID, result, rerr)
	}
	return scanner.Err()
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func handle(msg message) (any, *rpcError) {
	switch msg.Method {
	case "tools/list":
		return map[string]any{"tools": []map[string]any{
			{"name": "chat_with_watsonx"},
			{"name": "analyze_medical_symptoms"},
		}}, nil
	case "tools/call":
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, &rpcError{Code: -32602, Message: err.Error()}
		}
		return callTool(p.Name, p.Arguments)
	case "resources/read":
		var p struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, &rpcError{Code: -32602, Message: err.Error()}
		}
		return readResource(p.URI)
	case "prompts/get":
		var p struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, &rpcError{Code: -32602, Message: err.Error()}
		}
		if p.Name != "health_education_prompt" {
			return nil, &rpcError{Code: -32602, Message: "unknown prompt: " + p.Name}
		}
		return map[string]any{"messages": []map[string]any{{
			"role":    "user",
			"content": map[string]any{"type": "text", "text": "Explain " + p.Arguments["topic"]},
		}}}, nil
	default:
		return nil, &rpcError{Code: -32601, Message: "method not found: " + msg.Method}
	}
}

func callTool(name string, args map[string]any) (any, *rpcError) {
	switch name {
	case "chat_with_watsonx":
		return textResult(fmt.Sprintf("echo: %v", args["query"])), nil
	case "analyze_medical_symptoms":
		// Arguments are echoed back as sorted JSON so callers can assert them.
		data, _ := json.Marshal(args)
		return textResult(string(data)), nil
	case "clear_conversation_history":
		return map[string]any{"content": []any{}}, nil
	case "get_conversation_summary":
		return textResult("summary: nothing yet"), nil
	case "slow":
		time.Sleep(SlowDelay)
		return textResult("slow done"), nil
	case "boom":
		return nil, &rpcError{Code: -32000, Message: "boom"}
	default:
		return nil, &rpcError{Code: -32602, Message: "unknown tool: " + name}
	}
}

func readResource(uri string) (any, *rpcError) {
	switch {
	case uri == "info://server":
		return contents(uri, "rpctest server"), nil
	case strings.HasPrefix(uri, "greeting://patient/"):
		name, _ := url.PathUnescape(strings.TrimPrefix(uri, "greeting://patient/"))
		return contents(uri, "Hello, "+name+"!"), nil
	case uri == "empty://resource":
		return map[string]any{"contents": []any{}}, nil
	default:
		return nil, &rpcError{Code: -32002, Message: "resource not found: " + uri}
	}
}

func textResult(text string) map[string]any {
	return map[string]any{"content": []map[string]any{{"type": "text", "text": text}}}
}

func contents(uri, text string) map[string]any {
	return map[string]any{"contents": []map[string]any{{"uri": uri, "mimeType": "text/plain", "text": text}}}
}

type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) reply(id json.RawMessage, result any, rerr *rpcError) {
	msg := map[string]any{"jsonrpc": "2.0", "id": id}
	if rerr != nil {
		msg["error"] = rerr
	} else {
		msg["result"] = result
	}
	l.write(msg)
}

func (l *lineWriter) write(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(append(data, '\n'))
}

type recorder struct {
	mu sync.Mutex
	f  *os.File
}

func openRecord(path string) (*recorder, error) {
	if path == "" {
		return &recorder{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	return &recorder{f: f}, nil
}

func (r *recorder) line(s string) {
	if r.f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.f.WriteString(s + "\n")
}

func (r *recorder) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

// ReadRecord returns the lines recorded at path.
func ReadRecord(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}
