// Package script exposes connected MCP servers to the host's expression
// evaluator. Each server becomes a namespace of callables; every call reads
// through the async cache so the evaluator's latency-critical loop never
// blocks on an RPC.
package script

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Table is the evaluator's global symbol table, owned by the host. All
// mutations arrive on the dispatch thread.
type Table interface {
	SetNamespace(name string, ns *Namespace)
	RemoveNamespace(name string)
}

// Func is one callable published to the evaluator. It pops its arguments
// from the evaluator stack and returns the value synchronously.
type Func func(st *Stack) string

// Namespace holds the callables for one server.
type Namespace struct {
	funcs map[string]Func
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{funcs: make(map[string]Func)}
}

// Set registers a callable under the given tool name.
func (n *Namespace) Set(name string, fn Func) {
	n.funcs[name] = fn
}

// Get returns the callable for a tool name.
func (n *Namespace) Get(name string) (Func, bool) {
	fn, ok := n.funcs[name]
	return fn, ok
}

// Names returns the callable names, sorted.
func (n *Namespace) Names() []string {
	names := make([]string, 0, len(n.funcs))
	for name := range n.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of callables.
func (n *Namespace) Len() int { return len(n.funcs) }

// Stack models the evaluator's argument stack. Positional arguments are
// pushed in call order, so callables pop them in reverse.
type Stack struct {
	values []any
}

// NewStack builds a stack with args pushed left to right.
func NewStack(args ...any) *Stack {
	s := &Stack{}
	for _, a := range args {
		s.Push(a)
	}
	return s
}

// Push adds a value on top of the stack.
func (s *Stack) Push(v any) {
	s.values = append(s.values, v)
}

// Pop removes and returns the top value.
func (s *Stack) Pop() (any, bool) {
	if len(s.values) == 0 {
		return nil, false
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, true
}

// Len reports the number of values on the stack.
func (s *Stack) Len() int { return len(s.values) }

// PopAll drains the stack and restores call order (the stack yields
// arguments in reverse).
func (s *Stack) PopAll() []any {
	out := make([]any, len(s.values))
	for i := len(s.values) - 1; i >= 0; i-- {
		v, _ := s.Pop()
		out[i] = v
	}
	return out
}

// ToJSON converts an evaluator value to the JSON value sent to a tool:
// nil stays null, booleans and strings pass through, integral numbers become
// integers, other numbers stay floating, maps convert recursively, and
// anything else is reduced to its textual form.
func ToJSON(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case string:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return ToJSON(float64(x))
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x)
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = ToJSON(val)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

// GlobalTable is an in-memory Table used by the bridge CLI and tests. The
// real host supplies its own symbol table implementation.
type GlobalTable struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// NewGlobalTable returns an empty table.
func NewGlobalTable() *GlobalTable {
	return &GlobalTable{namespaces: make(map[string]*Namespace)}
}

func (t *GlobalTable) SetNamespace(name string, ns *Namespace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.namespaces[name] = ns
}

func (t *GlobalTable) RemoveNamespace(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.namespaces, name)
}

// Namespace returns the published namespace for a server.
func (t *GlobalTable) Namespace(name string) (*Namespace, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ns, ok := t.namespaces[name]
	return ns, ok
}

// Call evaluates "<namespace>.<fn>(args ...)" against the table. Evaluation
// helper for the CLI and tests.
func (t *GlobalTable) Call(namespace, fn string, args ...any) (string, error) {
	ns, ok := t.Namespace(namespace)
	if !ok {
		return "", fmt.Errorf("script: unknown namespace %q", namespace)
	}
	f, ok := ns.Get(fn)
	if !ok {
		return "", fmt.Errorf("script: unknown function %q in namespace %q", fn, namespace)
	}
	return f(NewStack(args...)), nil
}
