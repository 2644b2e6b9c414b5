package script

import (
	"context"
	"reflect"
	"testing"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/cache"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/host"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/mcp"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/registry"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/schema"
)

// inlineExecutor runs tasks synchronously so cache refreshes complete before
// the test continues.
type inlineExecutor struct{}

func (inlineExecutor) Go(fn func()) { fn() }
func (inlineExecutor) Wait()        {}

// stubTransport serves a fixed tool list and records the last call.
type stubTransport struct {
	connected bool
	tools     []mcp.ToolInfo
	lastArgs  map[string]any
	reply     string
}

func (s *stubTransport) Connect(ctx context.Context) error { s.connected = true; return nil }
func (s *stubTransport) Connected() bool                   { return s.connected }
func (s *stubTransport) Tools() []mcp.ToolInfo             { return s.tools }

func (s *stubTransport) CallTool(ctx context.Context, tool string, args map[string]any) (*mcp.Result, error) {
	s.lastArgs = args
	return &mcp.Result{Content: []mcp.Content{{Kind: mcp.ContentText, Text: s.reply}}}, nil
}

func (s *stubTransport) Close() error { s.connected = false; return nil }

func greetTool() mcp.ToolInfo {
	s, _ := schema.Parse([]byte(`{"type":"object","properties":{"name":{"type":"string"},"note":{"type":"string"}}}`))
	return mcp.ToolInfo{Name: "greet", Schema: s}
}

func boundRegistry(t *testing.T, stub *stubTransport) (*GlobalTable, *registry.Registry) {
	t.Helper()
	table := NewGlobalTable()
	c := cache.New()
	r := registry.New(&host.InlineDispatcher{}, c)
	r.SetTransportFactory(func(cfg *config.ServerConfig) registry.Transport { return stub })
	r.AddHooks(NewBinder(table, c, inlineExecutor{}).Hooks())

	sc := &config.ServerConfig{Name: "files", Transport: config.TransportStdio, Command: "/bin/true"}
	if err := r.Add(sc); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Connect(context.Background(), "files"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return table, r
}

func TestBinder_MirrorsRegistry(t *testing.T) {
	stub := &stubTransport{tools: []mcp.ToolInfo{greetTool()}, reply: "hello"}
	table, r := boundRegistry(t, stub)

	ns, ok := table.Namespace("files")
	if !ok {
		t.Fatal("namespace missing after connect")
	}
	if got := ns.Names(); !reflect.DeepEqual(got, []string{"greet"}) {
		t.Errorf("namespace functions = %v", got)
	}

	// First read returns the placeholder; the inline executor completes the
	// refresh before the second read.
	if got, _ := table.Call("files", "greet", "bob"); got != cache.Loading {
		t.Errorf("first call = %q, want %q", got, cache.Loading)
	}
	if got, _ := table.Call("files", "greet", "bob"); got != "hello" {
		t.Errorf("second call = %q, want the tool reply", got)
	}

	// A stale function reference survives disconnect but answers with the
	// error value instead of calling through.
	fn, _ := ns.Get("greet")
	if err := r.Disconnect("files"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, ok := table.Namespace("files"); ok {
		t.Error("namespace survived disconnect")
	}
	if got := fn(NewStack("bob")); got != disconnectedValue {
		t.Errorf("stale callable = %q, want %q", got, disconnectedValue)
	}
}

func TestBinder_ForwardsNullArguments(t *testing.T) {
	stub := &stubTransport{tools: []mcp.ToolInfo{greetTool()}, reply: "hi"}
	table, _ := boundRegistry(t, stub)

	if _, err := table.Call("files", "greet", nil, "ps"); err != nil {
		t.Fatalf("call: %v", err)
	}
	v, ok := stub.lastArgs["name"]
	if !ok {
		t.Fatal("nil argument dropped; want JSON null for the parameter")
	}
	if v != nil {
		t.Errorf("name = %v, want nil", v)
	}
	if stub.lastArgs["note"] != "ps" {
		t.Errorf("note = %v", stub.lastArgs["note"])
	}
}
