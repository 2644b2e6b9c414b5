package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sampleStore() *Store {
	return &Store{
		Servers: []*ServerConfig{
			{
				Name:        "files",
				Transport:   TransportStdio,
				Command:     "mcp-files",
				Args:        []string{"--root", "/data"},
				WorkingDir:  "/data",
				Env:         map[string]string{"MODE": "ro"},
				AutoConnect: true,
				TimeoutMs:   2500,
			},
			{
				Name:      "search",
				Transport: TransportStdio,
				Command:   "mcp-search",
			},
		},
		Gemini: GeminiConfig{
			APIKey:      "sk-test-123",
			Model:       ModelGemini25Pro,
			MaxTokens:   4096,
			Temperature: 1.2,
			Enabled:     true,
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	orig := sampleStore()
	data, err := orig.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got := Deserialize(data)
	if len(got.Servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(got.Servers))
	}
	first := got.Servers[0]
	if first.Name != "files" || first.Command != "mcp-files" || first.WorkingDir != "/data" {
		t.Errorf("first server = %+v", first)
	}
	if !reflect.DeepEqual(first.Args, []string{"--root", "/data"}) {
		t.Errorf("args = %v", first.Args)
	}
	if first.TimeoutMs != 2500 || !first.AutoConnect {
		t.Errorf("timeout/autoconnect lost: %+v", first)
	}
	if got.Servers[1].TimeoutMs != DefaultTimeoutMs {
		t.Errorf("absent timeout should default, got %d", got.Servers[1].TimeoutMs)
	}
	if got.Gemini != orig.Gemini {
		t.Errorf("gemini round-trip = %+v, want %+v", got.Gemini, orig.Gemini)
	}
}

func TestSerialize_ObfuscatesKey(t *testing.T) {
	data, err := sampleStore().Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if strings.Contains(string(data), "sk-test-123") {
		t.Error("API key written in the clear")
	}
}

func TestDeserialize_SkipsBadEntries(t *testing.T) {
	doc := `
servers:
  - name: good
    transport: stdio
    command: run-good
  - name: ""
    transport: stdio
    command: nameless
  - name: good
    transport: stdio
    command: duplicate
  - name: badtransport
    transport: carrier-pigeon
    command: x
  - "just a string"
`
	s := Deserialize([]byte(doc))
	if len(s.Servers) != 1 {
		t.Fatalf("servers = %d, want only the valid one", len(s.Servers))
	}
	if s.Servers[0].Command != "run-good" {
		t.Errorf("kept wrong entry: %+v", s.Servers[0])
	}
}

func TestDeserialize_MalformedDocument(t *testing.T) {
	s := Deserialize([]byte("servers: [unclosed"))
	if len(s.Servers) != 0 {
		t.Errorf("malformed document should yield empty store")
	}
	if s.Gemini.Model != DefaultModel {
		t.Errorf("gemini should default, got %+v", s.Gemini)
	}
}

func TestDeserialize_ClampsGemini(t *testing.T) {
	doc := `
gemini:
  model: GEMINI_9000_ULTRA
  max_tokens: 999999
  temperature: -3
  enabled: true
`
	s := Deserialize([]byte(doc))
	if s.Gemini.Model != DefaultModel {
		t.Errorf("unknown model should coerce to default, got %q", s.Gemini.Model)
	}
	if s.Gemini.MaxTokens != MaxOutputTokens {
		t.Errorf("max tokens = %d, want clamp to %d", s.Gemini.MaxTokens, MaxOutputTokens)
	}
	if s.Gemini.Temperature != MinTemperature {
		t.Errorf("temperature = %v, want clamp to %v", s.Gemini.Temperature, MinTemperature)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	s := LoadFile(filepath.Join(t.TempDir(), "nope.yml"))
	if len(s.Servers) != 0 || s.Gemini.Model != DefaultModel {
		t.Errorf("missing file should yield defaults: %+v", s)
	}
}

func TestSaveFile_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yml")
	if err := sampleStore().SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := LoadFile(path)
	if len(got.Servers) != 2 || got.Gemini.APIKey != "sk-test-123" {
		t.Errorf("file round-trip lost data: %+v", got)
	}
}

func TestSeedFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	s := NewStore()
	s.SeedFromEnv()
	if s.Gemini.APIKey != "env-key" {
		t.Errorf("seed = %q", s.Gemini.APIKey)
	}
	if s.Gemini.Enabled {
		t.Error("seeding must not enable the integration")
	}

	s.Gemini.APIKey = "explicit"
	s.SeedFromEnv()
	if s.Gemini.APIKey != "explicit" {
		t.Error("seed must not overwrite an existing key")
	}
}

func TestObfuscateKey_RoundTripAndMalformed(t *testing.T) {
	for _, key := range []string{"", "a", "sk-longer-key-with-unicode-ü"} {
		if got := DeobfuscateKey(ObfuscateKey(key)); got != key {
			t.Errorf("round trip %q = %q", key, got)
		}
	}
	if got := DeobfuscateKey("%%%not-base64%%%"); got != "" {
		t.Errorf("malformed input should yield empty, got %q", got)
	}
}

func TestMergedEnv(t *testing.T) {
	sc := &ServerConfig{
		Name:      "x",
		Transport: TransportStdio,
		Command:   "x",
		Env:       map[string]string{"B": "2", "A": "1"},
	}
	got := sc.MergedEnv([]string{"PATH=/bin", "A=old"})
	joined := strings.Join(got, ";")
	if !strings.Contains(joined, "A=1") || !strings.Contains(joined, "B=2") || !strings.Contains(joined, "PATH=/bin") {
		t.Errorf("merged env = %v", got)
	}
	if strings.Contains(joined, "A=old") {
		t.Errorf("override lost: %v", got)
	}
}
