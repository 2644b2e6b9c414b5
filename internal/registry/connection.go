package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/mcp"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/queue"
)

// ErrCooldown is returned when a connect attempt arrives less than
// ReconnectCooldown after the previous attempt for the same server.
var ErrCooldown = errors.New("registry: reconnect cooldown active")

// ReconnectCooldown is the minimum gap between connect attempts per server.
// Compared against a monotonic clock; not persisted across restarts.
const ReconnectCooldown = 5 * time.Second

// Transport is the session surface a Connection drives. *mcp.Client is the
// stdio implementation; hosts embedding in-process tool providers supply
// their own.
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	Tools() []mcp.ToolInfo
	CallTool(ctx context.Context, tool string, args map[string]any) (*mcp.Result, error)
	Close() error
}

// TransportFactory builds the transport for one server config.
type TransportFactory func(cfg *config.ServerConfig) Transport

func dialStdio(cfg *config.ServerConfig) Transport { return mcp.NewClient(cfg) }

// Connection is one MCP session: the config, the transport client, and the
// per-server request queue. Born disconnected. Connect/Disconnect serialize
// on the connection's mutex so transport state never interleaves.
type Connection struct {
	mu          sync.Mutex
	cfg         *config.ServerConfig
	dial        TransportFactory
	client      Transport
	queue       *queue.Queue
	lastAttempt time.Time
}

func newConnection(cfg *config.ServerConfig, dial TransportFactory) *Connection {
	return &Connection{cfg: cfg, dial: dial}
}

// Name returns the server name.
func (c *Connection) Name() string { return c.cfg.Name }

// Config returns the server config backing this connection.
func (c *Connection) Config() *config.ServerConfig { return c.cfg }

// Connected reports whether the session is live.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.Connected()
}

// Tools returns the tool snapshot frozen at handshake, or nil when
// disconnected.
func (c *Connection) Tools() []mcp.ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	return c.client.Tools()
}

// Tool looks up one tool by name in the frozen snapshot.
func (c *Connection) Tool(name string) (mcp.ToolInfo, bool) {
	for _, t := range c.Tools() {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.ToolInfo{}, false
}

// Connect performs the handshake and starts the request queue. Returns nil
// when already connected. Attempts inside the cooldown window fail fast
// without spawning a process.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.Connected() {
		return nil
	}
	if !c.lastAttempt.IsZero() {
		if since := time.Since(c.lastAttempt); since < ReconnectCooldown {
			return fmt.Errorf("%w: server %q, retry in %v",
				ErrCooldown, c.cfg.Name, (ReconnectCooldown - since).Round(time.Millisecond))
		}
	}
	c.lastAttempt = time.Now()

	client := c.dial(c.cfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	c.client = client
	c.queue = queue.New(c.cfg.Name, client.CallTool)
	return nil
}

// Disconnect drains the queue, awaits the in-flight call, and closes the
// transport. Idempotent and always safe.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	client, q := c.client, c.queue
	c.client, c.queue = nil, nil
	c.mu.Unlock()

	if q != nil {
		q.Close()
	}
	if client != nil {
		_ = client.Close()
	}
}

// Reconnect is disconnect followed by connect, subject to the cooldown.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// Submit enqueues a tool request without blocking. The request completes
// with an error when the connection is down.
func (c *Connection) Submit(req *queue.Request) {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	if q == nil {
		req.Reject(fmt.Errorf("%w: server %q", mcp.ErrNotConnected, c.cfg.Name))
		return
	}
	q.Submit(req)
}

// Call submits a tool request and waits for its completion.
func (c *Connection) Call(ctx context.Context, tool string, args map[string]any) (*mcp.Result, error) {
	req := queue.NewRequest(tool, args)
	c.Submit(req)
	resp := req.Wait(ctx)
	return resp.Result, resp.Err
}
