// ABOUTME: Tests for typed tool calls using a scripted fake requester
// ABOUTME: Validates argument shaping, reply mapping, and benign defaults

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/rpc"
)

type sentRequest struct {
	method string
	params map[string]any
}

// fakeRequester records requests and answers with a scripted reply.
type fakeRequester struct {
	mu    sync.Mutex
	sent  []sentRequest
	reply func(method string, params map[string]any) (*rpc.Response, error)
}

func (f *fakeRequester) SendRequest(_ context.Context, method string, params map[string]any) (*rpc.Response, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentRequest{method: method, params: params})
	fn := f.reply
	f.mu.Unlock()
	if fn == nil {
		return &rpc.Response{Result: json.RawMessage(`{}`)}, nil
	}
	return fn(method, params)
}

func (f *fakeRequester) last(t *testing.T) sentRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no request sent")
	}
	return f.sent[len(f.sent)-1]
}

func replyWith(result string) func(string, map[string]any) (*rpc.Response, error) {
	return func(string, map[string]any) (*rpc.Response, error) {
		return &rpc.Response{Result: json.RawMessage(result)}, nil
	}
}

func newClient(f *fakeRequester) *Client {
	return New(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCallToolOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		resp     *rpc.Response
		err      error
		wantText string
		wantErr  string
		wantKind action.Kind
	}{
		{
			name:     "content text",
			resp:     &rpc.Response{Result: json.RawMessage(`{"content":[{"type":"text","text":"X"}]}`)},
			wantText: "X",
		},
		{
			name:     "error envelope",
			resp:     &rpc.Response{Error: &rpc.RPCError{Code: -1, Message: "boom"}},
			wantErr:  "boom",
			wantKind: action.KindProtocol,
		},
		{
			name:     "error without message",
			resp:     &rpc.Response{Error: &rpc.RPCError{Code: -1}},
			wantErr:  "Unknown error",
			wantKind: action.KindProtocol,
		},
		{
			name:     "no content",
			resp:     &rpc.Response{Result: json.RawMessage(`{"content":[]}`)},
			wantErr:  "Unexpected response format",
			wantKind: action.KindShape,
		},
		{
			name:     "empty reply",
			resp:     &rpc.Response{},
			wantErr:  "Unexpected response format",
			wantKind: action.KindShape,
		},
		{
			name:     "transport failure",
			err:      rpc.ErrNoResponse,
			wantErr:  "Connection error: no response from MCP server",
			wantKind: action.KindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := &fakeRequester{reply: func(string, map[string]any) (*rpc.Response, error) {
				return tt.resp, tt.err
			}}
			out := newClient(f).CallTool(context.Background(), "anything", nil)

			if tt.wantErr == "" {
				if !out.OK() || out.Text != tt.wantText {
					t.Errorf("expected text %q, got %+v", tt.wantText, out)
				}
				return
			}
			if out.OK() {
				t.Fatalf("expected error %q, got text %q", tt.wantErr, out.Text)
			}
			if out.Err.Message != tt.wantErr || out.Err.Kind != tt.wantKind {
				t.Errorf("expected %v %q, got %v %q", tt.wantKind, tt.wantErr, out.Err.Kind, out.Err.Message)
			}
		})
	}
}

func TestChatArguments(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{"content":[{"text":"hi there"}]}`)}
	out := newClient(f).Chat(context.Background(), "hello", DefaultTemperature, 0)
	if out.Text != "hi there" {
		t.Errorf("unexpected outcome %+v", out)
	}

	req := f.last(t)
	if req.method != "tools/call" || req.params["name"] != ToolChat {
		t.Fatalf("unexpected request %+v", req)
	}
	args := req.params["arguments"].(map[string]any)
	if args["query"] != "hello" || args["temperature"] != DefaultTemperature || args["max_tokens"] != DefaultMaxTokens {
		t.Errorf("unexpected chat arguments %v", args)
	}
}

func TestAnalyzeSymptomsOptionalArguments(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{"content":[{"text":"analysis"}]}`)}
	c := newClient(f)

	c.AnalyzeSymptoms(context.Background(), "fever", nil, "")
	args := f.last(t).params["arguments"].(map[string]any)
	if len(args) != 1 || args["symptoms"] != "fever" {
		t.Errorf("expected only symptoms, got %v", args)
	}

	age := 0
	c.AnalyzeSymptoms(context.Background(), "cough", &age, " female ")
	args = f.last(t).params["arguments"].(map[string]any)
	if args["patient_age"] != 0 || args["patient_gender"] != "female" {
		t.Errorf("expected age 0 and gender, got %v", args)
	}
}

func TestClearHistoryAndSummaryDefaults(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{}`)}
	c := newClient(f)

	if out := c.ClearHistory(context.Background()); out.Text != "Conversation history cleared." {
		t.Errorf("unexpected clear outcome %+v", out)
	}
	if out := c.GetSummary(context.Background()); out.Text != "No conversation to summarise." {
		t.Errorf("unexpected summary outcome %+v", out)
	}

	f.reply = replyWith(`{"content":[{"text":"Conversation history has been cleared. Starting fresh!"}]}`)
	if out := c.ClearHistory(context.Background()); out.Text != "Conversation history has been cleared. Starting fresh!" {
		t.Errorf("expected server text, got %+v", out)
	}

	f.reply = func(string, map[string]any) (*rpc.Response, error) { return nil, errors.New("pipe closed") }
	if out := c.ClearHistory(context.Background()); out.OK() || out.Err.Message != "Error clearing history: pipe closed" {
		t.Errorf("unexpected clear failure %+v", out)
	}
	if out := c.GetSummary(context.Background()); out.OK() || out.Err.Message != "Error getting summary: pipe closed" {
		t.Errorf("unexpected summary failure %+v", out)
	}
}

func TestGetGreeting(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{"contents":[{"uri":"greeting://patient/Jane Doe","text":"Hello Jane Doe"}]}`)}
	c := newClient(f)

	if out := c.GetGreeting(context.Background(), "Jane Doe"); out.Text != "Hello Jane Doe" {
		t.Errorf("unexpected greeting %+v", out)
	}
	req := f.last(t)
	if req.method != "resources/read" || req.params["uri"] != "greeting://patient/Jane Doe" {
		t.Errorf("unexpected request %+v", req)
	}

	c.GetGreeting(context.Background(), "")
	if uri := f.last(t).params["uri"]; uri != "greeting://patient/Patient" {
		t.Errorf("expected default patient name, got %v", uri)
	}

	f.reply = replyWith(`{"contents":[]}`)
	if out := c.GetGreeting(context.Background(), "x"); out.Text != "Hello!" {
		t.Errorf("expected default greeting, got %+v", out)
	}
}

func TestGetServerInfo(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{"contents":[{"text":"\n  medical server v1\n"}]}`)}
	c := newClient(f)
	if out := c.GetServerInfo(context.Background()); out.Text != "medical server v1" {
		t.Errorf("unexpected info %+v", out)
	}

	f.reply = replyWith(`{"contents":[{}]}`)
	if out := c.GetServerInfo(context.Background()); out.Text != "No server info" {
		t.Errorf("expected default info, got %+v", out)
	}
}

func TestReadResourceErrors(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: func(string, map[string]any) (*rpc.Response, error) {
		return &rpc.Response{}, nil
	}}
	c := newClient(f)
	if _, err := c.ReadResource(context.Background(), "x://y"); err == nil || err.Message != "Resource not found" {
		t.Errorf("expected Resource not found, got %v", err)
	}

	f.reply = func(string, map[string]any) (*rpc.Response, error) {
		return &rpc.Response{Error: &rpc.RPCError{Message: "unknown resource x://y"}}, nil
	}
	if _, err := c.ReadResource(context.Background(), "x://y"); err == nil || err.Message != "unknown resource x://y" {
		t.Errorf("expected server message, got %v", err)
	}

	f.reply = func(string, map[string]any) (*rpc.Response, error) { return nil, errors.New("eof") }
	if out := c.GetServerInfo(context.Background()); out.OK() || out.Err.Message != "Error reading resource: eof" {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestGetPrompt(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{"messages":[{"role":"user","content":{"type":"text","text":"  Explain asthma  "}}]}`)}
	c := newClient(f)
	out := c.GetPrompt(context.Background(), "health_education_prompt", map[string]string{"topic": "asthma"})
	if out.Text != "Explain asthma" {
		t.Errorf("unexpected prompt %+v", out)
	}
	req := f.last(t)
	if req.method != "prompts/get" || req.params["name"] != "health_education_prompt" {
		t.Errorf("unexpected request %+v", req)
	}

	f.reply = func(string, map[string]any) (*rpc.Response, error) {
		return &rpc.Response{Error: &rpc.RPCError{Message: "nope"}}, nil
	}
	if out := c.GetPrompt(context.Background(), "missing", nil); out.OK() || out.Err.Message != "nope" {
		t.Errorf("unexpected outcome %+v", out)
	}

	f.reply = func(string, map[string]any) (*rpc.Response, error) {
		return &rpc.Response{}, nil
	}
	if out := c.GetPrompt(context.Background(), "missing", nil); out.OK() || out.Err.Message != "Prompt not found" {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestListTools(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{"tools":[{"name":"chat_with_watsonx","description":"chat"}]}`)}
	tools, err := newClient(f).ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != ToolChat {
		t.Errorf("unexpected tools %+v", tools)
	}
}

func TestChatSendsExplicitZeroTemperature(t *testing.T) {
	t.Parallel()

	f := &fakeRequester{reply: replyWith(`{"content":[{"text":"ok"}]}`)}
	newClient(f).Chat(context.Background(), "hi", 0, 200)

	args := f.last(t).params["arguments"].(map[string]any)
	if args["temperature"] != 0.0 {
		t.Errorf("temperature = %v, want 0", args["temperature"])
	}
}
