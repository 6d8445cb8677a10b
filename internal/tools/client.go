// ABOUTME: Typed tool and resource calls against the backend server
// ABOUTME: Shapes arguments per tool and converts raw replies into action Outcomes

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mauromedda/medassist/internal/action"
	"github.com/mauromedda/medassist/internal/log"
	"github.com/mauromedda/medassist/internal/rpc"
)

// Server tool and resource names.
const (
	ToolChat           = "chat_with_watsonx"
	ToolAnalyze        = "analyze_medical_symptoms"
	ToolClearHistory   = "clear_conversation_history"
	ToolSummary        = "get_conversation_summary"
	ResourceServerInfo = "info://server"
	greetingPrefix     = "greeting://patient/"
)

// Defaults applied when callers leave values unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 200
	DefaultPatientName = "Patient"
)

// Benign texts used when a reply carries no content.
const (
	historyClearedText = "Conversation history cleared."
	noSummaryText      = "No conversation to summarise."
	defaultGreeting    = "Hello!"
	defaultServerInfo  = "No server info"
)

// Requester performs one JSON-RPC round trip. *rpc.Session implements it.
type Requester interface {
	SendRequest(ctx context.Context, method string, params map[string]any) (*rpc.Response, error)
}

// Client issues typed calls through a Requester.
type Client struct {
	req Requester
	log *slog.Logger
}

// New creates a Client. A nil logger uses the "tools" component logger.
func New(req Requester, logger *slog.Logger) *Client {
	if logger == nil {
		logger = log.WithComponent("tools")
	}
	return &Client{req: req, log: logger}
}

type toolResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResourceResult is the result object of resources/read.
type ResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent is one resource body.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ToolInfo describes a tool advertised by tools/list.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CallTool invokes a server tool and maps the reply to an Outcome.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) action.Outcome {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.req.SendRequest(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return action.Failuref(action.KindTransport, "Connection error: %v", err)
	}
	return c.toolOutcome(name, resp)
}

func (c *Client) toolOutcome(name string, resp *rpc.Response) action.Outcome {
	if text, ok := c.firstText(name, resp); ok {
		return action.Success(text)
	}
	if resp.Error != nil {
		msg := resp.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return action.Failure(action.KindProtocol, msg)
	}
	return action.Failure(action.KindShape, "Unexpected response format")
}

// firstText extracts result.content[0].text when the result has content.
func (c *Client) firstText(name string, resp *rpc.Response) (string, bool) {
	if len(resp.Result) == 0 {
		return "", false
	}
	var result toolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.log.Warn("tool result not understood", "tool", name, "err", err)
		return "", false
	}
	if len(result.Content) == 0 {
		return "", false
	}
	if result.IsError {
		c.log.Warn("tool reported an error result", "tool", name)
	}
	return result.Content[0].Text, true
}

// Chat sends a conversational message. Temperature is sent as given, so 0
// asks for deterministic output; zero maxTokens picks the default.
func (c *Client) Chat(ctx context.Context, message string, temperature float64, maxTokens int) action.Outcome {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return c.CallTool(ctx, ToolChat, map[string]any{
		"query":       message,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	})
}

// AnalyzeSymptoms requests a symptom analysis. Age and gender are sent only
// when provided.
func (c *Client) AnalyzeSymptoms(ctx context.Context, symptoms string, age *int, gender string) action.Outcome {
	args := map[string]any{"symptoms": symptoms}
	if age != nil {
		args["patient_age"] = *age
	}
	if gender = strings.TrimSpace(gender); gender != "" {
		args["patient_gender"] = gender
	}
	return c.CallTool(ctx, ToolAnalyze, args)
}

// ClearHistory resets the server-side conversation.
func (c *Client) ClearHistory(ctx context.Context) action.Outcome {
	resp, err := c.req.SendRequest(ctx, "tools/call", map[string]any{
		"name":      ToolClearHistory,
		"arguments": map[string]any{},
	})
	if err != nil {
		return action.Failuref(action.KindTransport, "Error clearing history: %v", err)
	}
	if text, ok := c.firstText(ToolClearHistory, resp); ok {
		return action.Success(text)
	}
	return action.Success(historyClearedText)
}

// GetSummary asks the server to summarise the conversation.
func (c *Client) GetSummary(ctx context.Context) action.Outcome {
	resp, err := c.req.SendRequest(ctx, "tools/call", map[string]any{
		"name":      ToolSummary,
		"arguments": map[string]any{},
	})
	if err != nil {
		return action.Failuref(action.KindTransport, "Error getting summary: %v", err)
	}
	if text, ok := c.firstText(ToolSummary, resp); ok {
		return action.Success(text)
	}
	return action.Success(noSummaryText)
}

// ReadResource fetches a resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ResourceResult, *action.Error) {
	resp, err := c.req.SendRequest(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, &action.Error{Kind: action.KindTransport, Message: "Error reading resource: " + err.Error()}
	}
	if len(resp.Result) == 0 {
		msg := "Resource not found"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return nil, &action.Error{Kind: action.KindProtocol, Message: msg}
	}

	var result ResourceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &action.Error{Kind: action.KindShape, Message: "Unexpected resource format"}
	}
	return &result, nil
}

// GetGreeting reads the personalised greeting resource. The name goes into
// the URI unescaped, which is what the server's {name} template expects.
func (c *Client) GetGreeting(ctx context.Context, name string) action.Outcome {
	if name = strings.TrimSpace(name); name == "" {
		name = DefaultPatientName
	}
	return c.resourceText(ctx, greetingPrefix+name, defaultGreeting)
}

// GetServerInfo reads the server information resource.
func (c *Client) GetServerInfo(ctx context.Context) action.Outcome {
	return c.resourceText(ctx, ResourceServerInfo, defaultServerInfo)
}

func (c *Client) resourceText(ctx context.Context, uri, fallback string) action.Outcome {
	res, rerr := c.ReadResource(ctx, uri)
	if rerr != nil {
		return action.Outcome{Err: rerr}
	}
	if len(res.Contents) == 0 || res.Contents[0].Text == "" {
		return action.Success(fallback)
	}
	return action.Success(strings.TrimSpace(res.Contents[0].Text))
}

// GetPrompt renders a server prompt template into plain text.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) action.Outcome {
	if args == nil {
		args = map[string]string{}
	}
	resp, err := c.req.SendRequest(ctx, "prompts/get", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return action.Failuref(action.KindTransport, "Error getting prompt: %v", err)
	}
	if len(resp.Result) == 0 {
		msg := "Prompt not found"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return action.Failure(action.KindProtocol, msg)
	}

	var result struct {
		Messages []struct {
			Role    string      `json:"role"`
			Content contentItem `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return action.Failure(action.KindShape, "Unexpected response format")
	}

	parts := make([]string, 0, len(result.Messages))
	for _, m := range result.Messages {
		if m.Content.Text != "" {
			parts = append(parts, strings.TrimSpace(m.Content.Text))
		}
	}
	return action.Success(strings.Join(parts, "\n\n"))
}

// ListTools returns the tools advertised by the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	resp, err := c.req.SendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list request: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error: %w", resp.Error)
	}

	var result struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parsing tools list: %w", err)
	}
	return result.Tools, nil
}
