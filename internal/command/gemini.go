package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/gemini"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/host"
)

// geminiCooldown is the minimum spacing between prompts from one caller.
const geminiCooldown = time.Second

// PromptRunner is the slice of the gemini loop the commands need.
type PromptRunner interface {
	IsConfigured() bool
	Simple(ctx context.Context, prompt string) string
	WithTools(ctx context.Context, prompt string, servers []string) *gemini.ToolsResult
}

// GeminiCommands owns the two prompt commands and their cooldown book.
type GeminiCommands struct {
	runner   PromptRunner
	executor host.Executor
	hostDisp host.Dispatcher

	mu       sync.Mutex
	lastUsed map[string]time.Time
	now      func() time.Time
}

// NewGeminiCommands wires the prompt commands to the loop.
func NewGeminiCommands(runner PromptRunner, executor host.Executor, hostDisp host.Dispatcher) *GeminiCommands {
	return &GeminiCommands{
		runner:   runner,
		executor: executor,
		hostDisp: hostDisp,
		lastUsed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Register adds the gemini and gemini-mcp commands to the dispatcher.
func (g *GeminiCommands) Register(d *Dispatcher) {
	d.Add(&Command{
		Name:        "gemini",
		Description: "Send a prompt to Gemini",
		Run:         func(ctx *Context) int { return g.run(ctx, false) },
	})
	d.Add(&Command{
		Name:        "gemini-mcp",
		Description: "Send a prompt to Gemini with MCP tools available",
		Run:         func(ctx *Context) int { return g.run(ctx, true) },
	})
}

func (g *GeminiCommands) run(ctx *Context, withTools bool) int {
	prompt := extractPrompt(ctx.Args)
	if prompt == "" {
		ctx.Out.Error("Usage: provide a prompt, e.g. gemini \"What is the weather?\"")
		return ExitFailure
	}
	if !g.runner.IsConfigured() {
		ctx.Out.Error("Gemini is not configured. Set an API key and enable it first.")
		return ExitFailure
	}
	if wait, ok := g.cooldownRemaining(ctx.Caller); !ok {
		ctx.Out.Error(fmt.Sprintf("Please wait %.1fs before sending another prompt.", wait.Seconds()))
		return ExitFailure
	}

	out := ctx.Out
	g.executor.Go(func() {
		if withTools {
			res := g.runner.WithTools(context.Background(), prompt, nil)
			g.hostDisp.Post(func() { printToolsResult(out, res) })
			return
		}
		text := g.runner.Simple(context.Background(), prompt)
		g.hostDisp.Post(func() { printLines(out, text) })
	})
	return ExitSuccess
}

// cooldownRemaining checks and refreshes the per-caller timestamp. The
// second return is false while the caller is still cooling down.
func (g *GeminiCommands) cooldownRemaining(caller string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.lastUsed[caller]; ok {
		if elapsed := now.Sub(last); elapsed < geminiCooldown {
			return geminiCooldown - elapsed, false
		}
	}
	g.lastUsed[caller] = now
	return 0, true
}

// extractPrompt trims the argument string and strips one pair of matching
// outer quotes.
func extractPrompt(args string) string {
	s := strings.TrimSpace(args)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}

func printLines(out Output, text string) {
	for _, line := range strings.Split(text, "\n") {
		out.Info(line)
	}
}

// printToolsResult prints the answer plus one summary line per tool call,
// of the form "server:tool (Nms)" with a failed marker when applicable.
func printToolsResult(out Output, res *gemini.ToolsResult) {
	printLines(out, res.Text)
	if len(res.ToolCalls) == 0 {
		return
	}
	out.Info("Tools used:")
	for _, call := range res.ToolCalls {
		line := fmt.Sprintf("  %s:%s (%dms", call.Server, call.Tool, call.DurationMs)
		if !call.Success {
			line += ", failed"
		}
		line += ")"
		out.Info(line)
	}
}
