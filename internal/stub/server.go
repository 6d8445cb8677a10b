// ABOUTME: Offline stand-in for the medical assistant server, built on the MCP Go SDK
// ABOUTME: Serves the same tools, resources, and prompts over stdio with canned, deterministic text

// Package stub implements a development server that speaks the same wire
// protocol as the real medical assistant without calling a model.
package stub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mauromedda/medassist/internal/log"
)

// Options configures the stub server.
type Options struct {
	Name    string
	Version string
	Model   string
	Logger  *slog.Logger
}

// Stub holds the server and its conversation state.
type Stub struct {
	opts    Options
	log     *slog.Logger
	history *conversation
	server  *mcp.Server
}

// ChatInput mirrors the chat tool arguments.
type ChatInput struct {
	Query       string  `json:"query" jsonschema:"the user's input message or question"`
	MaxTokens   int     `json:"max_tokens,omitempty" jsonschema:"maximum number of tokens to generate"`
	Temperature float64 `json:"temperature,omitempty" jsonschema:"randomness in generation from 0 to 1"`
}

// AnalyzeInput mirrors the symptom analysis arguments.
type AnalyzeInput struct {
	Symptoms      string `json:"symptoms" jsonschema:"description of patient symptoms"`
	PatientAge    *int   `json:"patient_age,omitempty" jsonschema:"patient's age"`
	PatientGender string `json:"patient_gender,omitempty" jsonschema:"patient's gender"`
}

// New builds a Stub with all tools, resources, and prompts registered.
func New(opts Options) *Stub {
	if opts.Name == "" {
		opts.Name = "Watsonx Medical Assistant (offline)"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.Model == "" {
		opts.Model = "offline-stub"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("stub")
	}

	s := &Stub{opts: opts, log: logger, history: &conversation{}}
	s.server = mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)
	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// Server exposes the underlying MCP server, for in-process transports.
func (s *Stub) Server() *mcp.Server {
	return s.server
}

// Run serves on stdin/stdout until the client disconnects or ctx is done.
func (s *Stub) Run(ctx context.Context) error {
	s.log.Info("stub server ready for stdio transport", "name", s.opts.Name)
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stub server: %w", err)
	}
	return nil
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func (s *Stub) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat_with_watsonx",
		Description: "Generate a conversational response",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, any, error) {
		s.log.Info("received chat query", "query", log.Preview(in.Query, 100))
		reply := chatReply(in.Query)
		s.history.add("user", in.Query)
		s.history.add("assistant", reply)
		return text(reply), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_medical_symptoms",
		Description: "Analyze medical symptoms and provide a preliminary assessment",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in AnalyzeInput) (*mcp.CallToolResult, any, error) {
		s.log.Info("analyzing symptoms", "symptoms", log.Preview(in.Symptoms, 50))
		return text(analysis(in)), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_conversation_history",
		Description: "Clear the conversation history to start fresh",
	}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
		s.history.clear()
		s.log.Info("conversation history cleared")
		return text("Conversation history has been cleared. Starting fresh!"), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_conversation_summary",
		Description: "Get a summary of the current conversation",
	}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
		return text(s.history.summary()), nil, nil
	})
}

func (s *Stub) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: greetingTemplate,
		Name:        "patient_greeting",
		Description: "Personalized greeting for a patient",
		MIMEType:    "text/plain",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		name, err := greetingName(req.Params.URI)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return resource(req.Params.URI, greeting(name)), nil
	})

	s.server.AddResource(&mcp.Resource{
		URI:         serverInfoURI,
		Name:        "server_info",
		Description: "Information about the server",
		MIMEType:    "text/plain",
	}, func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return resource(req.Params.URI, s.info()), nil
	})
}

func resource(uri, body string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{{
		URI:      uri,
		MIMEType: "text/plain",
		Text:     body,
	}}}
}

func (s *Stub) registerPrompts() {
	s.server.AddPrompt(&mcp.Prompt{
		Name:        "medical_consultation_prompt",
		Description: "Structured medical consultation prompt",
		Arguments: []*mcp.PromptArgument{
			{Name: "symptoms", Description: "Patient's reported symptoms", Required: true},
			{Name: "duration", Description: "How long symptoms have been present"},
			{Name: "severity", Description: "Severity level of symptoms"},
		},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := req.Params.Arguments
		return promptResult(consultationPrompt(args["symptoms"], args["duration"], args["severity"])), nil
	})

	s.server.AddPrompt(&mcp.Prompt{
		Name:        "health_education_prompt",
		Description: "Health education prompt for a topic",
		Arguments: []*mcp.PromptArgument{
			{Name: "topic", Description: "Health topic to educate about", Required: true},
		},
	}, func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return promptResult(educationPrompt(req.Params.Arguments["topic"])), nil
	})
}

func promptResult(body string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{Messages: []*mcp.PromptMessage{{
		Role:    "user",
		Content: &mcp.TextContent{Text: body},
	}}}
}

func (s *Stub) info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%s\n\n", s.opts.Name, s.opts.Version)
	b.WriteString("Capabilities:\n")
	b.WriteString("- Conversational replies (canned, offline)\n")
	b.WriteString("- Medical symptom analysis\n")
	b.WriteString("- Conversation management\n")
	b.WriteString("- Patient greeting generation\n\n")
	fmt.Fprintf(&b, "Model: %s\n\n", s.opts.Model)
	b.WriteString("Available Tools:\n")
	b.WriteString("- chat_with_watsonx: General conversation\n")
	b.WriteString("- analyze_medical_symptoms: Medical symptom analysis\n")
	b.WriteString("- clear_conversation_history: Reset conversation\n")
	b.WriteString("- get_conversation_summary: Summarize conversation\n\n")
	b.WriteString("Available Resources:\n")
	b.WriteString("- greeting://patient/{name}: Personalized patient greetings\n")
	b.WriteString("- info://server: Server information")
	return b.String()
}
