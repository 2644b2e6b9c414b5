// Package registry owns the MCP server fleet: the config map, the live
// connections, and the fan-out of registration events to the script and
// command binding layers.
//
// Concurrency model: map mutations are guarded by mu; transport I/O always
// happens outside the lock so a hung server cannot block unrelated
// operations. Registration events are marshalled through the host dispatcher
// so namespace and command mutations stay on the dispatch thread.
package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/cache"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/host"
)

// Hooks receive registration events after a server connects and before its
// bindings must disappear on disconnect. Both run on the dispatch thread.
type Hooks struct {
	OnConnected    func(conn *Connection)
	OnDisconnected func(name string)
}

// Registry is the single source of truth for server configs and connections.
type Registry struct {
	dispatcher host.Dispatcher
	cache      *cache.AsyncCache

	mu      sync.Mutex
	configs map[string]*config.ServerConfig
	conns   map[string]*Connection
	hooks   []Hooks
	dial    TransportFactory

	// autoConnectLimit bounds the startup fan-out.
	autoConnectLimit int
}

// New creates an empty registry. The cache may be nil when no script surface
// exists (tests).
func New(dispatcher host.Dispatcher, c *cache.AsyncCache) *Registry {
	return &Registry{
		dispatcher:       dispatcher,
		cache:            c,
		configs:          make(map[string]*config.ServerConfig),
		conns:            make(map[string]*Connection),
		dial:             dialStdio,
		autoConnectLimit: 4,
	}
}

// SetTransportFactory overrides how new connections reach their servers. The
// default launches the configured stdio command; hosts embedding in-process
// tool providers install their own factory before loading configs.
func (r *Registry) SetTransportFactory(dial TransportFactory) {
	r.mu.Lock()
	r.dial = dial
	r.mu.Unlock()
}

// AddHooks subscribes a binding layer to registration events.
func (r *Registry) AddHooks(h Hooks) {
	r.mu.Lock()
	r.hooks = append(r.hooks, h)
	r.mu.Unlock()
}

// Load replaces the config set with the store's servers. Existing
// connections must be torn down first (startup path only).
func (r *Registry) Load(store *config.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sc := range store.Servers {
		r.configs[sc.Name] = sc.Clone()
		r.conns[sc.Name] = newConnection(r.configs[sc.Name], r.dial)
	}
}

// Add registers a new server config. The server starts disconnected.
func (r *Registry) Add(sc *config.ServerConfig) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[sc.Name]; exists {
		return fmt.Errorf("registry: server %q already exists", sc.Name)
	}
	cp := sc.Clone()
	r.configs[sc.Name] = cp
	r.conns[sc.Name] = newConnection(cp, r.dial)
	log.Printf("[Registry] Added server %q", sc.Name)
	return nil
}

// Remove deletes a server config. The server must be disconnected first.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[name]
	if !ok {
		return fmt.Errorf("registry: unknown server %q", name)
	}
	if conn.Connected() {
		return fmt.Errorf("registry: server %q is connected; disconnect before removing", name)
	}
	delete(r.configs, name)
	delete(r.conns, name)
	log.Printf("[Registry] Removed server %q", name)
	return nil
}

// Update replaces the config stored under oldName. A rename requires the new
// name to be free. Any live connection is torn down first; even when the
// name is unchanged, transport-relevant fields may have changed.
func (r *Registry) Update(oldName string, sc *config.ServerConfig) error {
	if err := sc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	conn, ok := r.conns[oldName]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: unknown server %q", oldName)
	}
	if sc.Name != oldName {
		if _, taken := r.configs[sc.Name]; taken {
			r.mu.Unlock()
			return fmt.Errorf("registry: server %q already exists", sc.Name)
		}
	}
	r.mu.Unlock()

	// Tear down outside the lock; fires deregistration events.
	r.disconnectConn(conn)

	// Re-validate under the lock: a concurrent Add or Remove may have
	// changed either name while the teardown ran unlocked. Clobbering a
	// freshly added server here would leak its connection.
	r.mu.Lock()
	if _, ok := r.conns[oldName]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: unknown server %q", oldName)
	}
	if sc.Name != oldName {
		if _, taken := r.configs[sc.Name]; taken {
			r.mu.Unlock()
			return fmt.Errorf("registry: server %q already exists", sc.Name)
		}
	}
	delete(r.configs, oldName)
	delete(r.conns, oldName)
	cp := sc.Clone()
	r.configs[cp.Name] = cp
	r.conns[cp.Name] = newConnection(cp, r.dial)
	r.mu.Unlock()

	log.Printf("[Registry] Updated server %q -> %q", oldName, sc.Name)
	return nil
}

// Connect establishes the session for a named server and, on success, fires
// registration events on the dispatch thread. Idempotent when already
// connected; fails fast inside the reconnect cooldown.
func (r *Registry) Connect(ctx context.Context, name string) error {
	r.mu.Lock()
	conn, ok := r.conns[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: unknown server %q", name)
	}
	if conn.Connected() {
		return nil
	}

	if err := conn.Connect(ctx); err != nil {
		return err
	}
	log.Printf("[Registry] Connected %q (%d tool(s))", name, len(conn.Tools()))

	hooks := r.snapshotHooks()
	r.dispatcher.Post(func() {
		for _, h := range hooks {
			if h.OnConnected != nil {
				h.OnConnected(conn)
			}
		}
	})
	return nil
}

// Disconnect tears a session down, purges its cache entries, and fires
// deregistration events. Safe to call on an already-disconnected server.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	conn, ok := r.conns[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: unknown server %q", name)
	}
	r.disconnectConn(conn)
	return nil
}

func (r *Registry) disconnectConn(conn *Connection) {
	wasConnected := conn.Connected()
	conn.Disconnect()
	if !wasConnected {
		return
	}
	name := conn.Name()
	if r.cache != nil {
		if n := r.cache.Evict(name + "."); n > 0 {
			log.Printf("[Registry] Evicted %d cache entr(ies) for %q", n, name)
		}
	}
	hooks := r.snapshotHooks()
	r.dispatcher.Post(func() {
		for _, h := range hooks {
			if h.OnDisconnected != nil {
				h.OnDisconnected(name)
			}
		}
	})
	log.Printf("[Registry] Disconnected %q", name)
}

// ConnectAutoConnect walks every config with autoConnect set and connects
// them with bounded concurrency. Per-server failures are logged, never
// fatal. Returns the number of servers now connected.
func (r *Registry) ConnectAutoConnect(ctx context.Context) int {
	r.mu.Lock()
	var names []string
	for name, sc := range r.configs {
		if sc.AutoConnect {
			names = append(names, name)
		}
	}
	limit := r.autoConnectLimit
	r.mu.Unlock()
	sort.Strings(names)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := r.Connect(ctx, name); err != nil {
				log.Printf("[Registry] Auto-connect %q failed: %v", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	connected := 0
	for _, name := range names {
		if conn, ok := r.Lookup(name); ok && conn.Connected() {
			connected++
		}
	}
	return connected
}

// DisconnectAll tears down every live session (shutdown path).
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		r.disconnectConn(c)
	}
}

// Lookup returns the connection for a named server.
func (r *Registry) Lookup(name string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[name]
	return c, ok
}

// Config returns a copy of the stored config for a named server.
func (r *Registry) Config(name string) (*config.ServerConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.configs[name]
	if !ok {
		return nil, false
	}
	return sc.Clone(), true
}

// Names returns all configured server names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connected returns the connections that are currently live, sorted by name.
func (r *Registry) Connected() []*Connection {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	live := conns[:0]
	for _, c := range conns {
		if c.Connected() {
			live = append(live, c)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Name() < live[j].Name() })
	return live
}

// Snapshot exports the current configs as a store for persistence.
func (r *Registry) Snapshot(gemini config.GeminiConfig) *config.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	store := &config.Store{Gemini: gemini}
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		store.Servers = append(store.Servers, r.configs[name].Clone())
	}
	return store
}

func (r *Registry) snapshotHooks() []Hooks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Hooks(nil), r.hooks...)
}
