package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/cache"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/command"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/gemini"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/host"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/registry"
	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/script"
)

func main() {
	// Load .env file
	config.LoadEnv()

	fmt.Println(`  ╔══════════════════════════════════╗`)
	fmt.Println(`  ║  METEOR MCP BRIDGE               ║`)
	fmt.Println(`  ║  server fleet · scripts · gemini ║`)
	fmt.Println(`  ╚══════════════════════════════════╝`)

	configPath := os.Getenv("MCP_CONFIG")
	if configPath == "" {
		wd, _ := os.Getwd()
		configPath = filepath.Join(wd, "servers.yml")
	}
	store := config.LoadFile(configPath)
	store.SeedFromEnv()
	fmt.Printf("📄 Config: %s (%d server(s))\n", configPath, len(store.Servers))

	// Host services. The inline dispatcher serializes callbacks the way a
	// game tick would; the executor fans blocking work out to goroutines.
	dispatcher := &host.InlineDispatcher{}
	executor := &host.GoExecutor{}

	asyncCache := cache.New()
	reg := registry.New(dispatcher, asyncCache)
	reg.Load(store)

	// Script bindings: every connected server exposes its tools as a script
	// namespace.
	table := script.NewGlobalTable()
	scriptBinder := script.NewBinder(table, asyncCache, executor)
	reg.AddHooks(scriptBinder.Hooks())

	// Command bindings: one <server>:<tool> command per tool.
	commands := command.NewDispatcher()
	cmdBinder := command.NewBinder(commands, executor, dispatcher)
	reg.AddHooks(cmdBinder.Hooks())

	// Gemini prompt surface. The settings holder guards the live config:
	// executor goroutines read it while the REPL mutates it.
	settings := &geminiSettings{cfg: store.Gemini}
	clients := gemini.NewClientManager(settings.Get)
	loop := gemini.NewLoop(clients, reg)
	command.NewGeminiCommands(loop, executor, dispatcher).Register(commands)

	registerAdminCommands(commands, reg, settings, configPath)
	registerGeminiConfigCommand(commands, settings, clients)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if n := reg.ConnectAutoConnect(ctx); n > 0 {
		fmt.Printf("🔌 MCP: %d server(s) connected\n", n)
	}

	repl(ctx, commands)

	fmt.Println("Shutting down...")
	reg.DisconnectAll()
	executor.Wait()
}

// geminiSettings is the mutable Gemini config shared between the REPL and
// the background prompt goroutines.
type geminiSettings struct {
	mu  sync.Mutex
	cfg config.GeminiConfig
}

func (s *geminiSettings) Get() config.GeminiConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *geminiSettings) Update(fn func(*config.GeminiConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
	s.cfg.Clamp()
}

// consoleOutput writes command output straight to the terminal.
type consoleOutput struct{}

func (consoleOutput) Info(line string)  { fmt.Println(line) }
func (consoleOutput) Error(line string) { fmt.Println("! " + line) }

// repl reads commands from stdin until EOF or cancellation.
func repl(ctx context.Context, commands *command.Dispatcher) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	out := consoleOutput{}
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return
			}
			commands.Dispatch(line, out, "console")
		}
	}
}

// registerAdminCommands adds the fleet management commands to the console.
func registerAdminCommands(d *command.Dispatcher, reg *registry.Registry, settings *geminiSettings, configPath string) {
	d.Add(&command.Command{
		Name:        "servers",
		Description: "List configured servers and their state",
		Run: func(ctx *command.Context) int {
			for _, name := range reg.Names() {
				state := "disconnected"
				if conn, ok := reg.Lookup(name); ok && conn.Connected() {
					state = fmt.Sprintf("connected, %d tool(s)", len(conn.Tools()))
				}
				ctx.Out.Info(fmt.Sprintf("  %s (%s)", name, state))
			}
			return command.ExitSuccess
		},
	})
	d.Add(&command.Command{
		Name:        "connect",
		Description: "Connect a configured server by name",
		Run: func(ctx *command.Context) int {
			name := strings.TrimSpace(ctx.Args)
			if name == "" {
				ctx.Out.Error("Usage: connect <server>")
				return command.ExitFailure
			}
			if err := reg.Connect(context.Background(), name); err != nil {
				ctx.Out.Error(fmt.Sprintf("Connect failed: %v", err))
				return command.ExitFailure
			}
			ctx.Out.Info(fmt.Sprintf("Connected %s", name))
			return command.ExitSuccess
		},
	})
	d.Add(&command.Command{
		Name:        "disconnect",
		Description: "Disconnect a server by name",
		Run: func(ctx *command.Context) int {
			name := strings.TrimSpace(ctx.Args)
			if name == "" {
				ctx.Out.Error("Usage: disconnect <server>")
				return command.ExitFailure
			}
			if err := reg.Disconnect(name); err != nil {
				ctx.Out.Error(fmt.Sprintf("Disconnect failed: %v", err))
				return command.ExitFailure
			}
			ctx.Out.Info(fmt.Sprintf("Disconnected %s", name))
			return command.ExitSuccess
		},
	})
	d.Add(&command.Command{
		Name:        "reconnect",
		Description: "Reconnect a server by name",
		Run: func(ctx *command.Context) int {
			name := strings.TrimSpace(ctx.Args)
			conn, ok := reg.Lookup(name)
			if !ok {
				ctx.Out.Error("Unknown server: " + name)
				return command.ExitFailure
			}
			if err := conn.Reconnect(context.Background()); err != nil {
				ctx.Out.Error(fmt.Sprintf("Reconnect failed: %v", err))
				return command.ExitFailure
			}
			ctx.Out.Info(fmt.Sprintf("Reconnected %s (%d tool(s))", name, len(conn.Tools())))
			return command.ExitSuccess
		},
	})
	d.Add(&command.Command{
		Name:        "server-add",
		Description: "Add a stdio server: server-add <name> <command> [args...]",
		Run: func(ctx *command.Context) int {
			fields := strings.Fields(ctx.Args)
			if len(fields) < 2 {
				ctx.Out.Error("Usage: server-add <name> <command> [args...]")
				return command.ExitFailure
			}
			sc := &config.ServerConfig{
				Name:      fields[0],
				Transport: config.TransportStdio,
				Command:   fields[1],
				Args:      fields[2:],
			}
			if err := reg.Add(sc); err != nil {
				ctx.Out.Error(fmt.Sprintf("Add failed: %v", err))
				return command.ExitFailure
			}
			ctx.Out.Info(fmt.Sprintf("Added %s (disconnected; use connect %s)", sc.Name, sc.Name))
			return command.ExitSuccess
		},
	})
	d.Add(&command.Command{
		Name:        "server-remove",
		Description: "Remove a disconnected server by name",
		Run: func(ctx *command.Context) int {
			name := strings.TrimSpace(ctx.Args)
			if err := reg.Remove(name); err != nil {
				ctx.Out.Error(fmt.Sprintf("Remove failed: %v", err))
				return command.ExitFailure
			}
			ctx.Out.Info(fmt.Sprintf("Removed %s", name))
			return command.ExitSuccess
		},
	})
	d.Add(&command.Command{
		Name:        "save",
		Description: "Persist the current configuration",
		Run: func(ctx *command.Context) int {
			snapshot := reg.Snapshot(settings.Get())
			if err := snapshot.SaveFile(configPath); err != nil {
				ctx.Out.Error(fmt.Sprintf("Save failed: %v", err))
				return command.ExitFailure
			}
			ctx.Out.Info(fmt.Sprintf("Saved %s", configPath))
			return command.ExitSuccess
		},
	})
	d.Add(&command.Command{
		Name:        "help",
		Description: "List available commands",
		Run: func(ctx *command.Context) int {
			for _, cmd := range d.List() {
				ctx.Out.Info(fmt.Sprintf("  %-24s %s", cmd.Name, cmd.Description))
			}
			return command.ExitSuccess
		},
	})
}

// registerGeminiConfigCommand adds the LLM settings command. Every change
// invalidates the cached SDK client so the next prompt rebuilds it.
func registerGeminiConfigCommand(d *command.Dispatcher, settings *geminiSettings, clients *gemini.ClientManager) {
	d.Add(&command.Command{
		Name:        "gemini-config",
		Description: "Show or change Gemini settings: gemini-config [key|model|enable|disable|test] [value]",
		Run: func(ctx *command.Context) int {
			fields := strings.Fields(ctx.Args)
			if len(fields) == 0 {
				g := settings.Get()
				state := "disabled"
				if g.Enabled {
					state = "enabled"
				}
				keyState := "not set"
				if g.APIKey != "" {
					keyState = "set"
				}
				ctx.Out.Info(fmt.Sprintf("Model: %s (%s)", g.Model, state))
				ctx.Out.Info(fmt.Sprintf("API key: %s, max tokens: %d, temperature: %.2f", keyState, g.MaxTokens, g.Temperature))
				return command.ExitSuccess
			}

			switch fields[0] {
			case "key":
				if len(fields) != 2 {
					ctx.Out.Error("Usage: gemini-config key <api-key>")
					return command.ExitFailure
				}
				settings.Update(func(g *config.GeminiConfig) { g.APIKey = fields[1] })
			case "model":
				if len(fields) != 2 {
					ctx.Out.Error("Usage: gemini-config model <symbol>")
					return command.ExitFailure
				}
				settings.Update(func(g *config.GeminiConfig) { g.Model = config.ParseModel(fields[1]) })
			case "enable":
				settings.Update(func(g *config.GeminiConfig) { g.Enabled = true })
			case "disable":
				settings.Update(func(g *config.GeminiConfig) { g.Enabled = false })
			case "test":
				ok, verdict := clients.TestConfiguration(context.Background(), settings.Get())
				ctx.Out.Info(verdict)
				if !ok {
					return command.ExitFailure
				}
				return command.ExitSuccess
			default:
				ctx.Out.Error("Unknown setting: " + fields[0])
				return command.ExitFailure
			}
			clients.Invalidate()
			ctx.Out.Info("Updated. Use gemini-config to review, save to persist.")
			return command.ExitSuccess
		},
	})
}
