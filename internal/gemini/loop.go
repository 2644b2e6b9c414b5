package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/mcp"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/registry"
)

// maxToolIterations bounds how many rounds of function calls a single
// prompt may trigger before the conversation is cut off.
const maxToolIterations = 6

// Canned responses for the degenerate paths.
const (
	msgNotConfigured = "Gemini is not configured. Set an API key and enable it first."
	msgEmptyPrompt   = "Prompt must not be empty."
	msgNoText        = "Gemini returned no text."
)

// clientSource is the slice of ClientManager the loop needs. Narrowed to an
// interface so tests can stand in a fake.
type clientSource interface {
	Client(ctx context.Context) (*genai.Client, config.GeminiConfig, error)
	IsConfigured() bool
}

// generateFunc performs one model call. The default hits the SDK; tests
// substitute a scripted one.
type generateFunc func(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

func sdkGenerate(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return client.Models.GenerateContent(ctx, model, contents, cfg)
}

// ToolCallInfo summarizes one tool execution made on the model's behalf.
type ToolCallInfo struct {
	Server       string
	Tool         string
	DurationMs   int64
	Success      bool
	ErrorMessage string
}

// ToolsResult is the outcome of a tool-enabled conversation.
type ToolsResult struct {
	Text      string
	ToolCalls []ToolCallInfo
}

// Loop drives Gemini conversations, with or without the MCP tool fleet.
type Loop struct {
	clients  clientSource
	registry *registry.Registry
	bridge   *Bridge
	generate generateFunc
	now      func() time.Time
}

// NewLoop wires the loop to its client source and server registry.
func NewLoop(clients *ClientManager, reg *registry.Registry) *Loop {
	return &Loop{
		clients:  clients,
		registry: reg,
		bridge:   NewBridge(),
		generate: sdkGenerate,
		now:      time.Now,
	}
}

// IsConfigured reports whether prompts can be served at all.
func (l *Loop) IsConfigured() bool { return l.clients.IsConfigured() }

// Simple sends one prompt and returns the model's text. Failures come back
// as readable strings rather than errors; callers print them as-is.
func (l *Loop) Simple(ctx context.Context, prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return msgEmptyPrompt
	}
	if !l.clients.IsConfigured() {
		return msgNotConfigured
	}
	client, cfg, err := l.clients.Client(ctx)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	resp, err := l.generate(ctx, client, cfg.Model.ID(), genai.Text(prompt), generateConfig(cfg, nil))
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if text := extractText(resp); text != "" {
		return text
	}
	return msgNoText
}

// WithTools runs the manual function-calling conversation. servers narrows
// the tool surface to the named servers; empty means every connected one.
// When no declarations can be built the call degrades to Simple.
func (l *Loop) WithTools(ctx context.Context, prompt string, servers []string) *ToolsResult {
	if strings.TrimSpace(prompt) == "" {
		return &ToolsResult{Text: msgEmptyPrompt}
	}
	if !l.clients.IsConfigured() {
		return &ToolsResult{Text: msgNotConfigured}
	}

	conns := l.selectConnections(servers)
	decls := l.declarations(conns)
	if len(decls) == 0 {
		log.Printf("[Gemini] No tools available, falling back to a plain prompt")
		return &ToolsResult{Text: "No MCP tools are available; answering without tools.\n\n" + l.Simple(ctx, prompt)}
	}

	client, cfg, err := l.clients.Client(ctx)
	if err != nil {
		return &ToolsResult{Text: fmt.Sprintf("Error: %v", err)}
	}

	genCfg := generateConfig(cfg, decls)
	history := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	result := &ToolsResult{}
	executed := 0

	for iter := 0; iter < maxToolIterations; iter++ {
		resp, err := l.generate(ctx, client, cfg.Model.ID(), history, genCfg)
		if err != nil {
			result.Text = fmt.Sprintf("Error: %v", err)
			return result
		}

		calls := functionCalls(resp)
		if len(calls) == 0 {
			result.Text = extractText(resp)
			if result.Text == "" {
				result.Text = msgNoText
			}
			if executed == 0 {
				result.Text += "\n\nNote: the model answered without executing any MCP tools."
			}
			return result
		}

		history = append(history, modelContent(resp))
		for _, call := range calls {
			payload, info := l.executeCall(ctx, conns, call)
			result.ToolCalls = append(result.ToolCalls, info)
			if info.Success {
				executed++
			}
			part := genai.NewPartFromFunctionResponse(call.Name, payload)
			history = append(history, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		}
	}

	result.Text = "The conversation did not finish within the tool-call limit."
	return result
}

// selectConnections resolves the requested server names to live connections.
func (l *Loop) selectConnections(servers []string) []*registry.Connection {
	if len(servers) == 0 {
		return l.registry.Connected()
	}
	var conns []*registry.Connection
	for _, name := range servers {
		conn, ok := l.registry.Lookup(name)
		if !ok || !conn.Connected() {
			log.Printf("[Gemini] Skipping %q: not connected", name)
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// declarations builds the function declarations for every tool of every
// given connection, routing each through the bridge.
func (l *Loop) declarations(conns []*registry.Connection) []*genai.FunctionDeclaration {
	var decls []*genai.FunctionDeclaration
	for _, conn := range conns {
		for _, tool := range conn.Tools() {
			decls = append(decls, l.bridge.Declaration(conn.Name(), tool))
		}
	}
	return decls
}

// executeCall routes one model-issued function call to its MCP tool and
// shapes the outcome into a function-response payload. Every failure mode
// yields a structured error payload so the conversation can continue.
func (l *Loop) executeCall(ctx context.Context, conns []*registry.Connection, call *genai.FunctionCall) (map[string]any, ToolCallInfo) {
	server, tool, ok := l.bridge.Resolve(call.Name)
	info := ToolCallInfo{Server: server, Tool: tool}
	if !ok {
		info.ErrorMessage = "unknown function"
		log.Printf("[Gemini] Model requested unknown function %q", call.Name)
		return map[string]any{
			"error":   true,
			"message": fmt.Sprintf("Unknown function requested: %s", call.Name),
		}, info
	}

	conn := findConnection(conns, server)
	if conn == nil || !conn.Connected() {
		info.ErrorMessage = "server not connected"
		return map[string]any{
			"error":   true,
			"message": fmt.Sprintf("Server '%s' is not connected.", server),
		}, info
	}

	args := make(map[string]any, len(call.Args))
	for k, v := range call.Args {
		if k == "" {
			log.Printf("[Gemini] Dropping argument with empty key for %s", call.Name)
			continue
		}
		args[k] = v
	}

	start := l.now()
	res, err := conn.Call(ctx, tool, args)
	info.DurationMs = l.now().Sub(start).Milliseconds()

	var toolErr *mcp.ToolError
	switch {
	case err == nil:
		info.Success = true
		return resultPayload(res), info
	case errors.As(err, &toolErr):
		info.ErrorMessage = toolErr.Result.JoinedText()
		payload := resultPayload(toolErr.Result)
		payload["error"] = true
		return payload, info
	default:
		info.ErrorMessage = err.Error()
		return map[string]any{"error": true, "message": err.Error()}, info
	}
}

// resultPayload flattens a tool result into the function-response map:
// structured content passes through, text joins under "content", meta is
// copied, and an empty result still says something.
func resultPayload(res *mcp.Result) map[string]any {
	payload := map[string]any{}
	if res != nil {
		if res.Structured != nil {
			payload["structuredContent"] = res.Structured
		}
		if text := res.JoinedText(); text != "" {
			payload["content"] = text
		}
		if len(res.Meta) > 0 {
			meta := make(map[string]any, len(res.Meta))
			for k, v := range res.Meta {
				meta[k] = v
			}
			payload["meta"] = meta
		}
	}
	if len(payload) == 0 {
		payload["message"] = "Tool completed without returning data."
	}
	return payload
}

func findConnection(conns []*registry.Connection, server string) *registry.Connection {
	for _, c := range conns {
		if c.Name() == server {
			return c
		}
	}
	return nil
}

// generateConfig maps the stored settings onto one request.
func generateConfig(cfg config.GeminiConfig, decls []*genai.FunctionDeclaration) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(cfg.MaxTokens),
		Temperature:     genai.Ptr(float32(cfg.Temperature)),
	}
	if len(decls) > 0 {
		out.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return out
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// functionCalls collects the function-call parts of the first candidate.
func functionCalls(resp *genai.GenerateContentResponse) []*genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

// modelContent returns the model turn to append to the history, normalizing
// a missing role.
func modelContent(resp *genai.GenerateContentResponse) *genai.Content {
	content := resp.Candidates[0].Content
	if content.Role == "" {
		content.Role = genai.RoleModel
	}
	return content
}
