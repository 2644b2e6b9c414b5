// Package mcp wraps the mcp-go SDK client for a single server: child-process
// spawn, initialize handshake, tool discovery, and tool invocation.
//
// The wrapped client is synchronous and not safe for concurrent CallTool use;
// the queue package linearizes access. This package only guards its own
// connection state.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	sdkclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/schema"
)

// clientInfo identifies this host in the MCP initialize handshake.
var clientInfo = sdkmcp.Implementation{
	Name:    "meteor-mcp-bridge",
	Version: "1.0.0",
}

// Client owns the transport to one MCP server. Born disconnected; Connect
// performs the handshake and freezes the tool list; Close is idempotent.
type Client struct {
	mu    sync.RWMutex
	cfg   *config.ServerConfig
	inner *sdkclient.Client
	tools []ToolInfo
}

// NewClient creates an unconnected client for the given server config.
func NewClient(cfg *config.ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect launches the child process, performs the MCP initialize handshake,
// and discovers tools. Any failure tears the transport down; no partial
// state is exposed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	already := c.inner != nil
	c.mu.RUnlock()
	if already {
		return nil
	}

	var t transport.Interface
	switch c.cfg.Transport {
	case config.TransportStdio:
		t = c.newStdioTransport()
	case config.TransportSSE, config.TransportHTTP:
		return fmt.Errorf("%w: %s for server %q", ErrNotImplemented, c.cfg.Transport, c.cfg.Name)
	default:
		return fmt.Errorf("mcp: unknown transport %q for server %q", c.cfg.Transport, c.cfg.Name)
	}

	inner := sdkclient.NewClient(t)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := inner.Start(ctx); err != nil {
		_ = inner.Close()
		return c.transportErr("start", err)
	}

	_, err := inner.Initialize(ctx, sdkmcp.InitializeRequest{
		Params: sdkmcp.InitializeParams{
			ProtocolVersion: sdkmcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      clientInfo,
		},
	})
	if err != nil {
		_ = inner.Close()
		return c.transportErr("initialize", err)
	}

	listed, err := inner.ListTools(ctx, sdkmcp.ListToolsRequest{})
	if err != nil {
		_ = inner.Close()
		return c.transportErr("list tools", err)
	}

	tools := make([]ToolInfo, 0, len(listed.Tools))
	for _, lt := range listed.Tools {
		tools = append(tools, toolInfoFromSDK(lt))
	}

	c.mu.Lock()
	c.inner = inner
	c.tools = tools
	c.mu.Unlock()
	return nil
}

// newStdioTransport builds the stdio transport with the config's env merged
// over the process env. When a working directory is set, the child is spawned
// with an explicit cwd instead of any shell wrapping.
func (c *Client) newStdioTransport() transport.Interface {
	env := c.cfg.MergedEnv(os.Environ())
	var opts []transport.StdioOption
	if dir := c.cfg.WorkingDir; dir != "" {
		opts = append(opts, transport.WithCommandFunc(
			func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
				cmd := exec.CommandContext(ctx, command, args...)
				cmd.Env = env
				cmd.Dir = dir
				return cmd, nil
			}))
	}
	return transport.NewStdioWithOptions(c.cfg.Command, env, c.cfg.Args, opts...)
}

// Tools returns the tool list frozen at handshake time. Empty when
// disconnected.
func (c *Client) Tools() []ToolInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Connected reports whether the handshake succeeded and Close has not run.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner != nil
}

// CallTool invokes the named tool. The error is ErrNotConnected before the
// handshake, a *ToolError when the server flags isError (the result payload
// is still returned), or a transport error otherwise.
//
// Only the connection's queue worker may call this; the underlying client
// does not tolerate concurrent requests.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*Result, error) {
	c.mu.RLock()
	inner := c.inner
	c.mu.RUnlock()
	if inner == nil {
		return nil, fmt.Errorf("%w: server %q", ErrNotConnected, c.cfg.Name)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := sdkmcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	raw, err := inner.CallTool(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("mcp: tool %q on %q timed out after %dms: %w",
				name, c.cfg.Name, c.cfg.Timeout(), err)
		}
		return nil, fmt.Errorf("mcp: call tool %q on %q: %w", name, c.cfg.Name, err)
	}

	result := resultFromSDK(raw)
	if result.IsError {
		return result, &ToolError{Tool: name, Result: result}
	}
	return result, nil
}

// Close terminates the connection and releases the child process. Idempotent
// and always safe.
func (c *Client) Close() error {
	c.mu.Lock()
	inner := c.inner
	c.inner = nil
	c.tools = nil
	c.mu.Unlock()

	if inner == nil {
		return nil
	}
	return inner.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(c.cfg.Timeout())*time.Millisecond)
}

func (c *Client) transportErr(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("mcp: %s for server %q timed out after %dms: %w",
			stage, c.cfg.Name, c.cfg.Timeout(), err)
	}
	return fmt.Errorf("mcp: %s for server %q: %w", stage, c.cfg.Name, err)
}

// toolInfoFromSDK converts an SDK tool descriptor, parsing its input schema.
// The SDK decodes schemas into Go maps, which lose the server's property
// declaration order; when the schema carries no explicit propertyOrdering, a
// deterministic one is synthesized (required names first, in declared order,
// then the rest by name) so positional arguments and usage strings stay
// stable.
func toolInfoFromSDK(t sdkmcp.Tool) ToolInfo {
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	s, err := schema.Parse(raw)
	if err != nil {
		s = &schema.Schema{Type: "object"}
	}
	if len(s.PropertyOrdering) == 0 {
		s.PropertyOrdering = synthesizeOrdering(s)
	}
	return ToolInfo{
		Name:        t.Name,
		Description: t.Description,
		Schema:      s,
		Raw:         raw,
	}
}

func synthesizeOrdering(s *schema.Schema) []string {
	if s.Properties == nil || s.Properties.Len() == 0 {
		return nil
	}
	order := make([]string, 0, s.Properties.Len())
	seen := make(map[string]bool, s.Properties.Len())
	for _, name := range s.Required {
		if s.Property(name) != nil && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if !seen[pair.Key] {
			order = append(order, pair.Key)
		}
	}
	return order
}

// resultFromSDK maps the SDK call result into the tagged content model.
func resultFromSDK(raw *sdkmcp.CallToolResult) *Result {
	r := &Result{
		Structured: raw.StructuredContent,
		IsError:    raw.IsError,
	}
	if raw.Meta != nil && len(raw.Meta.AdditionalFields) > 0 {
		r.Meta = make(map[string]any, len(raw.Meta.AdditionalFields))
		for k, v := range raw.Meta.AdditionalFields {
			r.Meta[k] = v
		}
	}
	for _, item := range raw.Content {
		switch v := item.(type) {
		case sdkmcp.TextContent:
			r.Content = append(r.Content, Content{Kind: ContentText, Text: v.Text})
		case sdkmcp.ImageContent:
			r.Content = append(r.Content, Content{Kind: ContentImage, Data: v.Data, MIME: v.MIMEType})
		case sdkmcp.AudioContent:
			r.Content = append(r.Content, Content{Kind: ContentAudio, Data: v.Data, MIME: v.MIMEType})
		case sdkmcp.EmbeddedResource:
			r.Content = append(r.Content, Content{Kind: ContentResource, Raw: v})
		default:
			r.Content = append(r.Content, Content{Kind: ContentOther, Raw: item})
		}
	}
	return r
}
