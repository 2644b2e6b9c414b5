package config

import (
	"fmt"
	"sort"
	"strings"
)

// Transport identifies the byte channel used to reach an MCP server.
type Transport string

const (
	// TransportStdio spawns a child process and speaks MCP over its
	// stdin/stdout. The only transport implemented by the core.
	TransportStdio Transport = "stdio"

	// TransportSSE and TransportHTTP are declared so configs referencing
	// them round-trip cleanly; connecting over them reports NotImplemented.
	TransportSSE  Transport = "sse"
	TransportHTTP Transport = "http"
)

// IsValid reports whether t is a known transport symbol.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportSSE, TransportHTTP:
		return true
	}
	return false
}

// DefaultTimeoutMs bounds the MCP handshake and every tool call unless the
// server config overrides it.
const DefaultTimeoutMs = 5000

// ServerConfig describes a single MCP server. Name doubles as the script
// namespace and the command prefix, so it must be unique and non-empty.
type ServerConfig struct {
	Name        string
	Transport   Transport
	Command     string
	Args        []string
	WorkingDir  string
	Env         map[string]string
	URL         string
	AutoConnect bool
	TimeoutMs   int
}

// Validate checks the invariants enforced at add/update time.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("config: server name must not be empty")
	}
	if !c.Transport.IsValid() {
		return fmt.Errorf("config: server %q: unknown transport %q", c.Name, c.Transport)
	}
	if c.Transport == TransportStdio && strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("config: server %q: stdio transport requires a command", c.Name)
	}
	if c.TimeoutMs < 0 {
		return fmt.Errorf("config: server %q: timeout must be positive", c.Name)
	}
	return nil
}

// Timeout returns the effective request timeout in milliseconds.
func (c *ServerConfig) Timeout() int {
	if c.TimeoutMs <= 0 {
		return DefaultTimeoutMs
	}
	return c.TimeoutMs
}

// Clone returns a deep copy so registry callers can hand configs out without
// sharing the Args slice or Env map.
func (c *ServerConfig) Clone() *ServerConfig {
	cp := *c
	if c.Args != nil {
		cp.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		cp.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			cp.Env[k] = v
		}
	}
	return &cp
}

// MergedEnv returns the process environment with the config's env entries
// layered on top, in "K=V" form suitable for exec.
func (c *ServerConfig) MergedEnv(base []string) []string {
	if len(c.Env) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(c.Env))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range c.Env {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}
