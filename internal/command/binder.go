package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/host"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/mcp"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/queue"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/registry"
)

// Binder mirrors registry state into the dispatcher: one "<server>:<tool>"
// command per tool of every connected server.
type Binder struct {
	dispatcher *Dispatcher
	executor   host.Executor
	hostDisp   host.Dispatcher
}

// NewBinder wires the command binding layer. Register its Hooks on the
// registry to activate it.
func NewBinder(d *Dispatcher, executor host.Executor, hostDisp host.Dispatcher) *Binder {
	return &Binder{dispatcher: d, executor: executor, hostDisp: hostDisp}
}

// Hooks returns the registry subscription. Both callbacks already run on the
// dispatch thread; the command tree is rebuilt on every change.
func (b *Binder) Hooks() registry.Hooks {
	return registry.Hooks{
		OnConnected: func(conn *registry.Connection) {
			for _, tool := range conn.Tools() {
				b.dispatcher.Add(b.toolCommand(conn, tool))
			}
			log.Printf("[Command] Registered %d command(s) for %q", len(conn.Tools()), conn.Name())
		},
		OnDisconnected: func(name string) {
			n := b.dispatcher.RemovePrefix(name + ":")
			log.Printf("[Command] Removed %d command(s) for %q", n, name)
		},
	}
}

// toolCommand builds the command for one (server, tool) pair.
func (b *Binder) toolCommand(conn *registry.Connection, tool mcp.ToolInfo) *Command {
	name := conn.Name() + ":" + tool.Name
	return &Command{
		Name:        name,
		Description: tool.Description,
		Run: func(ctx *Context) int {
			if strings.TrimSpace(ctx.Args) == "help" {
				printHelp(ctx.Out, name, tool)
				return ExitSuccess
			}

			args, err := ParseArgs(ctx.Args, tool.Schema)
			if err != nil {
				ctx.Out.Error("Argument parsing failed: " + err.Error())
				return ExitFailure
			}
			if missing := MissingRequired(args, tool.Schema); len(missing) > 0 {
				ctx.Out.Error("Missing required parameters. Usage: " + Usage(tool.Schema))
				return ExitFailure
			}

			// The RPC runs on the background executor; output lines are
			// marshalled back through the host dispatcher.
			out := ctx.Out
			b.executor.Go(func() {
				result, err := conn.Call(context.Background(), tool.Name, args)
				b.hostDisp.Post(func() {
					printResult(out, result, err)
				})
			})
			return ExitSuccess
		},
		Suggest: func(partial string) []string {
			return suggestParams(partial, tool)
		},
	}
}

func printHelp(out Output, name string, tool mcp.ToolInfo) {
	if tool.Description != "" {
		out.Info(tool.Description)
	}
	out.Info("Usage: " + name + " " + Usage(tool.Schema))
	for _, param := range tool.Schema.PropertyNames() {
		marker := "  "
		if tool.Schema.IsRequired(param) {
			marker = "* "
		}
		desc := ""
		if p := tool.Schema.Property(param); p != nil {
			desc = p.Description
		}
		out.Info(fmt.Sprintf("%s%s (%s) %s", marker, param, tool.Schema.PropertyType(param), desc))
	}
}

func printResult(out Output, result *mcp.Result, err error) {
	if err != nil {
		var toolErr *mcp.ToolError
		switch {
		case errors.As(err, &toolErr):
			out.Error("Tool Error: " + toolErr.Result.JoinedText())
			// Structured payload and meta still get shown.
			for _, line := range mcp.RenderCommandLines(&mcp.Result{
				Structured: toolErr.Result.Structured,
				Meta:       toolErr.Result.Meta,
			}) {
				out.Error(line)
			}
		case errors.Is(err, queue.ErrShuttingDown):
			out.Error("Error: Server is shutting down")
		default:
			out.Error("Error: " + err.Error())
		}
		return
	}
	lines := mcp.RenderCommandLines(result)
	if len(lines) == 0 {
		out.Info("(no output)")
		return
	}
	for _, line := range lines {
		out.Info(line)
	}
}

// suggestParams completes "name=" for schema parameters not yet present in
// the input, filtered by the trailing partial token, case-insensitively.
func suggestParams(partial string, tool mcp.ToolInfo) []string {
	tokens := tokenize(partial)
	used := make(map[string]bool, len(tokens))
	last := ""
	trailingSpace := partial == "" || strings.HasSuffix(partial, " ")
	for i, tok := range tokens {
		if name, _, ok := splitNamed(tok); ok {
			used[strings.ToLower(name)] = true
		} else if i == len(tokens)-1 && !trailingSpace {
			last = tok
		}
	}

	var out []string
	for _, name := range tool.Schema.PropertyNames() {
		if used[strings.ToLower(name)] {
			continue
		}
		if last != "" && !strings.HasPrefix(strings.ToLower(name), strings.ToLower(last)) {
			continue
		}
		out = append(out, name+"=")
	}
	return out
}
