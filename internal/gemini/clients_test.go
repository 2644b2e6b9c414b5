package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/MCDxAI/meteor-mcp-addon-sub002/internal/config"
)

func configuredGemini() config.GeminiConfig {
	return config.GeminiConfig{
		APIKey:      "key-1",
		Model:       config.DefaultModel,
		MaxTokens:   1024,
		Temperature: 0.7,
		Enabled:     true,
	}
}

func TestClientManager_CachesUntilConfigChanges(t *testing.T) {
	cfg := configuredGemini()
	m := NewClientManager(func() config.GeminiConfig { return cfg })

	builds := 0
	m.newClient = func(ctx context.Context, c config.GeminiConfig) (*genai.Client, error) {
		builds++
		return &genai.Client{}, nil
	}

	for i := 0; i < 3; i++ {
		if _, _, err := m.Client(context.Background()); err != nil {
			t.Fatalf("client: %v", err)
		}
	}
	if builds != 1 {
		t.Errorf("builds = %d, want the cached client reused", builds)
	}

	cfg.APIKey = "key-2"
	if _, got, err := m.Client(context.Background()); err != nil || got.APIKey != "key-2" {
		t.Fatalf("client after change: %v, cfg %+v", err, got)
	}
	if builds != 2 {
		t.Errorf("builds = %d, want rebuild on config change", builds)
	}
}

func TestClientManager_Invalidate(t *testing.T) {
	m := NewClientManager(configuredGemini)
	builds := 0
	m.newClient = func(ctx context.Context, c config.GeminiConfig) (*genai.Client, error) {
		builds++
		return &genai.Client{}, nil
	}

	if _, _, err := m.Client(context.Background()); err != nil {
		t.Fatalf("client: %v", err)
	}
	m.Invalidate()
	if _, _, err := m.Client(context.Background()); err != nil {
		t.Fatalf("client: %v", err)
	}
	if builds != 2 {
		t.Errorf("builds = %d, want rebuild after Invalidate", builds)
	}
}

func TestClientManager_NotConfigured(t *testing.T) {
	m := NewClientManager(func() config.GeminiConfig {
		return config.GeminiConfig{Model: config.DefaultModel}
	})
	if m.IsConfigured() {
		t.Error("empty config reported as configured")
	}
	if _, _, err := m.Client(context.Background()); err == nil {
		t.Error("unconfigured Client call should fail")
	}
}

func TestClientManager_BuildFailure(t *testing.T) {
	m := NewClientManager(configuredGemini)
	fail := true
	m.newClient = func(ctx context.Context, c config.GeminiConfig) (*genai.Client, error) {
		if fail {
			return nil, errors.New("bad credentials")
		}
		return &genai.Client{}, nil
	}

	if _, _, err := m.Client(context.Background()); err == nil {
		t.Fatal("expected build failure")
	}
	// A failed build must not be cached.
	fail = false
	if _, _, err := m.Client(context.Background()); err != nil {
		t.Errorf("client after recovery: %v", err)
	}
}

func TestTestConfiguration_NoKey(t *testing.T) {
	m := NewClientManager(configuredGemini)
	ok, verdict := m.TestConfiguration(context.Background(), config.GeminiConfig{Model: config.DefaultModel})
	if ok {
		t.Error("keyless config should fail verification")
	}
	if verdict != "No API key set." {
		t.Errorf("verdict = %q", verdict)
	}
}

func TestTestConfiguration_ClientError(t *testing.T) {
	m := NewClientManager(configuredGemini)
	m.newClient = func(ctx context.Context, c config.GeminiConfig) (*genai.Client, error) {
		return nil, errors.New("dial failed")
	}
	ok, verdict := m.TestConfiguration(context.Background(), configuredGemini())
	if ok {
		t.Error("client failure should fail verification")
	}
	if verdict == "" {
		t.Error("verdict missing")
	}
}
