package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
)

// testPrompt is sent once by TestConfiguration to verify a key works.
const testPrompt = "Reply with the single word: ok"

// newClientFunc builds the underlying SDK client. Swappable in tests.
type newClientFunc func(ctx context.Context, cfg config.GeminiConfig) (*genai.Client, error)

func newSDKClient(ctx context.Context, cfg config.GeminiConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// ClientManager caches one SDK client and rebuilds it only when the
// configuration it was built from changes. All access goes through a single
// mutex, so concurrent callers share the cached client.
type ClientManager struct {
	mu        sync.Mutex
	cfgFn     func() config.GeminiConfig
	newClient newClientFunc

	cached    *genai.Client
	cachedCfg config.GeminiConfig
	valid     bool
}

// NewClientManager returns a manager that reads the live configuration
// through cfgFn on every use.
func NewClientManager(cfgFn func() config.GeminiConfig) *ClientManager {
	return &ClientManager{cfgFn: cfgFn, newClient: newSDKClient}
}

// IsConfigured reports whether the current configuration has a key and is
// enabled.
func (m *ClientManager) IsConfigured() bool {
	return m.cfgFn().IsConfigured()
}

// Client returns the cached SDK client, rebuilding it if the configuration
// changed since the last call. The snapshot of the configuration the client
// was built from is returned alongside it.
func (m *ClientManager) Client(ctx context.Context) (*genai.Client, config.GeminiConfig, error) {
	cfg := m.cfgFn()
	if !cfg.IsConfigured() {
		return nil, cfg, fmt.Errorf("gemini is not configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && m.cachedCfg == cfg {
		return m.cached, cfg, nil
	}

	client, err := m.newClient(ctx, cfg)
	if err != nil {
		m.valid = false
		m.cached = nil
		return nil, cfg, fmt.Errorf("create gemini client: %w", err)
	}
	// The SDK client holds no connections of its own, the previous one is
	// simply dropped.
	m.cached = client
	m.cachedCfg = cfg
	m.valid = true
	log.Printf("[Gemini] Client ready (model %s)", cfg.Model.ID())
	return client, cfg, nil
}

// Invalidate discards the cached client. The next Client call rebuilds it.
func (m *ClientManager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.valid = false
	m.mu.Unlock()
}

// TestConfiguration builds a throwaway client for cfg and sends a fixed
// prompt. It never touches the cached client. The returned string is a
// human-readable verdict.
func (m *ClientManager) TestConfiguration(ctx context.Context, cfg config.GeminiConfig) (bool, string) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return false, "No API key set."
	}
	cfg.Clamp()

	client, err := m.newClient(ctx, cfg)
	if err != nil {
		return false, fmt.Sprintf("Client creation failed: %v", err)
	}
	resp, err := client.Models.GenerateContent(ctx, cfg.Model.ID(), genai.Text(testPrompt), &genai.GenerateContentConfig{
		MaxOutputTokens: 16,
	})
	if err != nil {
		return false, fmt.Sprintf("Request failed: %v", err)
	}
	if extractText(resp) == "" {
		return false, "The API responded without text."
	}
	return true, "API key verified."
}
