// Package cache provides the non-blocking tool-result cache backing the
// script evaluator. Reads return the last known value immediately and, at
// most once per key, schedule a background refresh. The evaluator's
// latency-critical loop never waits on an RPC.
package cache

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Loading is the value every key holds before its first refresh completes.
const Loading = "Loading..."

// entry is the per-key state: last value plus the single-flight flag, both
// guarded by the entry's own mutex.
type entry struct {
	mu        sync.Mutex
	lastValue string
	inFlight  bool
}

// AsyncCache maps canonical keys to async results.
type AsyncCache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty cache.
func New() *AsyncCache {
	return &AsyncCache{entries: make(map[string]*entry)}
}

// Key builds the canonical cache key "<server>.<tool>(k=v, ...)" with argument
// keys sorted, so equal argument maps produce equal keys regardless of
// insertion order.
func Key(server, tool string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(server)
	b.WriteByte('.')
	b.WriteString(tool)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, args[k])
	}
	b.WriteByte(')')
	return b.String()
}

// Read returns the current value for (server, tool, args) without blocking.
// When no refresh is in flight for the key, one is scheduled through submit;
// the refresh function performs the RPC and returns the new value (or an
// "Error: ..." string). The in-flight flag is cleared on every exit path so a
// failed refresh cannot wedge the key.
func (c *AsyncCache) Read(server, tool string, args map[string]any, submit func(task func()), refresh func() string) string {
	key := Key(server, tool, args)
	e := c.entry(key)

	e.mu.Lock()
	start := !e.inFlight
	if start {
		e.inFlight = true
	}
	value := e.lastValue
	e.mu.Unlock()

	// The task re-acquires the entry lock, so it must be handed to submit
	// only after the lock is released; submit may run it synchronously.
	if start {
		submit(func() {
			next := runRefresh(key, refresh)
			e.mu.Lock()
			e.lastValue = next
			e.inFlight = false
			e.mu.Unlock()
		})
	}
	return value
}

// Peek returns the stored value for a key without scheduling anything.
func (c *AsyncCache) Peek(server, tool string, args map[string]any) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[Key(server, tool, args)]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastValue, true
}

// Evict drops every key starting with prefix. Called on server disconnect
// with "<server>.".
func (c *AsyncCache) Evict(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of cached keys.
func (c *AsyncCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *AsyncCache) entry(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{lastValue: Loading}
		c.entries[key] = e
	}
	return e
}

// runRefresh shields the cache from a panicking refresh function; the key
// must never be left permanently in-flight or with no value.
func runRefresh(key string, refresh func() string) (value string) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[Cache] Refresh for %s panicked: %v", key, p)
			value = fmt.Sprintf("Error: %v", p)
		}
	}()
	return refresh()
}
