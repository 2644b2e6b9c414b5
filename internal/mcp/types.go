package mcp

import (
	"encoding/json"
	"errors"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/schema"
)

// Sentinel errors for the transport boundary. Callers classify with errors.Is.
var (
	// ErrNotConnected is returned by tool calls issued before a successful
	// handshake or after Close.
	ErrNotConnected = errors.New("mcp: not connected")

	// ErrNotImplemented is returned when connecting over a declared but
	// unsupported transport.
	ErrNotImplemented = errors.New("mcp: transport not implemented")
)

// ToolInfo describes a single tool as frozen at handshake time.
type ToolInfo struct {
	Name        string
	Description string
	Schema      *schema.Schema
	Raw         json.RawMessage // schema as received, for pass-through
}

// ContentKind tags one item of a tool result's content list.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentImage
	ContentAudio
	ContentResource
	ContentOther
)

// Content is one item of a tool result. A tagged variant rather than an
// interface hierarchy: the rendering rules switch on Kind.
type Content struct {
	Kind ContentKind
	Text string // ContentText: the text
	Data string // ContentImage/ContentAudio: opaque payload string
	MIME string
	Raw  any // ContentResource/ContentOther: original item
}

// Result is the outcome of one tool call. When the server flags an error the
// payload is still populated so callers can inspect or forward it.
type Result struct {
	Content    []Content
	Structured any
	Meta       map[string]any
	IsError    bool
}

// ToolError marks a server-reported tool failure (isError=true). It carries
// the full result so every consumer surface can render the payload its own
// way.
type ToolError struct {
	Tool   string
	Result *Result
}

func (e *ToolError) Error() string {
	return "mcp: tool " + e.Tool + " returned error: " + e.Result.JoinedText()
}

// JoinedText flattens the textual content items, newline-separated.
func (r *Result) JoinedText() string {
	var out string
	for _, c := range r.Content {
		if c.Kind != ContentText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += c.Text
	}
	return out
}
