package script

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/cache"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/host"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/mcp"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/registry"
)

// disconnectedValue is what a callable returns once its server is gone but
// the evaluator still holds a reference to the function.
const disconnectedValue = "Error: Server disconnected"

// Binder mirrors registry state into the evaluator symbol table: one
// namespace per connected server, one callable per tool.
type Binder struct {
	table    Table
	cache    *cache.AsyncCache
	executor host.Executor
}

// NewBinder wires the binding layer. Register its Hooks on the registry to
// activate it.
func NewBinder(table Table, c *cache.AsyncCache, executor host.Executor) *Binder {
	return &Binder{table: table, cache: c, executor: executor}
}

// Hooks returns the registry subscription. Both callbacks already run on the
// dispatch thread.
func (b *Binder) Hooks() registry.Hooks {
	return registry.Hooks{
		OnConnected: func(conn *registry.Connection) {
			ns := NewNamespace()
			for _, tool := range conn.Tools() {
				ns.Set(tool.Name, b.bind(conn, tool))
			}
			b.table.SetNamespace(conn.Name(), ns)
			log.Printf("[Script] Published namespace %q (%d function(s))", conn.Name(), ns.Len())
		},
		OnDisconnected: func(name string) {
			b.table.RemoveNamespace(name)
			log.Printf("[Script] Removed namespace %q", name)
		},
	}
}

// bind builds the callable for one tool. The callable pops positional
// arguments off the evaluator stack, maps them to parameter names in schema
// property order, and reads through the async cache.
func (b *Binder) bind(conn *registry.Connection, tool mcp.ToolInfo) Func {
	server := conn.Name()
	names := tool.Schema.PropertyNames()

	return func(st *Stack) string {
		if !conn.Connected() {
			return disconnectedValue
		}

		positional := st.PopAll()
		args := make(map[string]any, len(positional))
		for i, v := range positional {
			if i >= len(names) {
				break // excess arguments are dropped
			}
			// A nil evaluator value is forwarded as JSON null.
			args[names[i]] = ToJSON(v)
		}

		return b.cache.Read(server, tool.Name, args, b.executor.Go, func() string {
			result, err := conn.Call(context.Background(), tool.Name, args)
			if err != nil {
				var toolErr *mcp.ToolError
				if errors.As(err, &toolErr) {
					return fmt.Sprintf("Error: %s", toolErr.Result.JoinedText())
				}
				return fmt.Sprintf("Error: %v", err)
			}
			return mcp.RenderScript(result)
		})
	}
}
