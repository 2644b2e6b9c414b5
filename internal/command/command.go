// Package command manages the textual command surface: one dynamically
// registered command per (server, tool), plus the gemini entry points. The
// dispatcher tree mirrors registry state and is rebuilt wholesale on every
// change so no stale node can survive a disconnect.
package command

import (
	"log"
	"sort"
	"strings"
	"sync"
)

// Exit codes follow the host dispatcher convention.
const (
	ExitSuccess = 1
	ExitFailure = 0
)

// Output is where a command's result lines go, supplied by the host per
// invocation.
type Output interface {
	Info(line string)
	Error(line string)
}

// Context carries one command invocation.
type Context struct {
	Args   string // trailing argument string, untrimmed
	Out    Output
	Caller string // identifies the invoker for per-caller cooldowns
}

// Command is one entry in the dispatcher.
type Command struct {
	Name        string
	Description string
	Run         func(ctx *Context) int
	// Suggest proposes completions for the remaining input, may be nil.
	Suggest func(partial string) []string
}

// Dispatcher holds the command registry and the lookup tree. The tree is
// replaced, never patched: Rebuild constructs a fresh sorted list and index
// from the live command set.
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]*Command
	sorted   []*Command          // rebuilt by rebuildLocked
	tree     map[string]*Command // rebuilt by rebuildLocked
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		commands: make(map[string]*Command),
		tree:     make(map[string]*Command),
	}
	return d
}

// Add registers a command and rebuilds the tree. An existing command with
// the same name is replaced with a warning.
func (d *Dispatcher) Add(cmd *Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.commands[cmd.Name]; exists {
		log.Printf("[Command] WARNING: replacing existing command %q", cmd.Name)
	}
	d.commands[cmd.Name] = cmd
	d.rebuildLocked()
}

// Remove unregisters a command and rebuilds the tree.
func (d *Dispatcher) Remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.commands[name]; !ok {
		return
	}
	delete(d.commands, name)
	d.rebuildLocked()
}

// RemovePrefix drops every command whose name starts with prefix and
// rebuilds the tree once. Returns the number removed.
func (d *Dispatcher) RemovePrefix(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for name := range d.commands {
		if strings.HasPrefix(name, prefix) {
			delete(d.commands, name)
			n++
		}
	}
	if n > 0 {
		d.rebuildLocked()
	}
	return n
}

// rebuildLocked reconstructs the sorted list and the lookup tree from
// scratch. Caller holds mu.
func (d *Dispatcher) rebuildLocked() {
	sorted := make([]*Command, 0, len(d.commands))
	tree := make(map[string]*Command, len(d.commands))
	for _, cmd := range d.commands {
		sorted = append(sorted, cmd)
		tree[cmd.Name] = cmd
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	d.sorted = sorted
	d.tree = tree
}

// Lookup finds a command by exact name.
func (d *Dispatcher) Lookup(name string) (*Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmd, ok := d.tree[name]
	return cmd, ok
}

// List returns the registered commands sorted by name.
func (d *Dispatcher) List() []*Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Command(nil), d.sorted...)
}

// Dispatch parses "name [args ...]" and runs the matching command. Unknown
// commands report failure through out.
func (d *Dispatcher) Dispatch(line string, out Output, caller string) int {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ExitFailure
	}
	name := trimmed
	args := ""
	if i := strings.IndexFunc(trimmed, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		name, args = trimmed[:i], strings.TrimSpace(trimmed[i+1:])
	}

	cmd, ok := d.Lookup(name)
	if !ok {
		out.Error("Unknown command: " + name)
		return ExitFailure
	}
	return cmd.Run(&Context{Args: args, Out: out, Caller: caller})
}

// SuggestLine proposes completions for a partially typed line. A line
// without a full command name completes command names; otherwise the
// command's own Suggest runs against the remaining input.
func (d *Dispatcher) SuggestLine(line string) []string {
	name := line
	rest := ""
	hasArgs := false
	if i := strings.IndexByte(line, ' '); i >= 0 {
		name, rest = line[:i], line[i+1:]
		hasArgs = true
	}

	if !hasArgs {
		var names []string
		for _, cmd := range d.List() {
			if strings.HasPrefix(strings.ToLower(cmd.Name), strings.ToLower(name)) {
				names = append(names, cmd.Name)
			}
		}
		return names
	}

	cmd, ok := d.Lookup(name)
	if !ok || cmd.Suggest == nil {
		return nil
	}
	return cmd.Suggest(rest)
}
