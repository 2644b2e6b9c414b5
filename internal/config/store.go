package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Store is the persisted state of the integration core: the server fleet and
// the LLM settings. It serializes to the host's tag-blob format, rendered
// here as a YAML tag tree.
type Store struct {
	Servers []*ServerConfig
	Gemini  GeminiConfig
}

// NewStore returns an empty store with default LLM settings.
func NewStore() *Store {
	return &Store{Gemini: DefaultGeminiConfig()}
}

// serverBlob is the wire form of one server entry. Field names match the
// persisted tag keys; unknown keys in the source are ignored.
type serverBlob struct {
	Name             string            `yaml:"name"`
	Transport        string            `yaml:"transport"`
	Command          string            `yaml:"command,omitempty"`
	WorkingDirectory string            `yaml:"workingDirectory,omitempty"`
	URL              string            `yaml:"url,omitempty"`
	AutoConnect      bool              `yaml:"autoConnect"`
	Timeout          int               `yaml:"timeout"`
	Args             []string          `yaml:"args,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
}

type geminiBlob struct {
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Enabled     bool    `yaml:"enabled"`
}

type blob struct {
	// Servers stays as raw nodes so one malformed entry can be skipped
	// without losing the rest of the list.
	Servers []yaml.Node `yaml:"servers"`
	Gemini  *geminiBlob `yaml:"gemini,omitempty"`
}

// Serialize renders the store as a blob. The API key is obfuscated, the
// model is written by symbolic name.
func (s *Store) Serialize() ([]byte, error) {
	out := blob{Gemini: &geminiBlob{
		APIKey:      ObfuscateKey(s.Gemini.APIKey),
		Model:       string(s.Gemini.Model),
		MaxTokens:   s.Gemini.MaxTokens,
		Temperature: s.Gemini.Temperature,
		Enabled:     s.Gemini.Enabled,
	}}
	for _, sc := range s.Servers {
		sb := serverBlob{
			Name:             sc.Name,
			Transport:        string(sc.Transport),
			Command:          sc.Command,
			WorkingDirectory: sc.WorkingDir,
			URL:              sc.URL,
			AutoConnect:      sc.AutoConnect,
			Timeout:          sc.Timeout(),
			Args:             sc.Args,
			Env:              sc.Env,
		}
		var node yaml.Node
		if err := node.Encode(sb); err != nil {
			return nil, fmt.Errorf("config: encode server %q: %w", sc.Name, err)
		}
		out.Servers = append(out.Servers, node)
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("config: serialize: %w", err)
	}
	return data, nil
}

// Deserialize parses a blob into a Store. It never fails: a malformed
// document yields an empty store, a malformed server entry is skipped with a
// warning, an absent gemini section yields defaults, and numeric fields are
// clamped into range.
func Deserialize(data []byte) *Store {
	s := NewStore()

	var in blob
	if err := yaml.Unmarshal(data, &in); err != nil {
		log.Printf("[Config] Malformed blob, starting empty: %v", err)
		return s
	}

	seen := make(map[string]bool)
	for i := range in.Servers {
		var sb serverBlob
		if err := in.Servers[i].Decode(&sb); err != nil {
			log.Printf("[Config] Skipping malformed server entry %d: %v", i, err)
			continue
		}
		sc := &ServerConfig{
			Name:        sb.Name,
			Transport:   Transport(sb.Transport),
			Command:     sb.Command,
			Args:        sb.Args,
			WorkingDir:  sb.WorkingDirectory,
			Env:         sb.Env,
			URL:         sb.URL,
			AutoConnect: sb.AutoConnect,
			TimeoutMs:   sb.Timeout,
		}
		if sc.TimeoutMs <= 0 {
			sc.TimeoutMs = DefaultTimeoutMs
		}
		if err := sc.Validate(); err != nil {
			log.Printf("[Config] Skipping server entry %d: %v", i, err)
			continue
		}
		if seen[sc.Name] {
			log.Printf("[Config] Skipping duplicate server entry %q", sc.Name)
			continue
		}
		seen[sc.Name] = true
		s.Servers = append(s.Servers, sc)
	}

	if in.Gemini != nil {
		s.Gemini = GeminiConfig{
			APIKey:      DeobfuscateKey(in.Gemini.APIKey),
			Model:       ParseModel(in.Gemini.Model),
			MaxTokens:   in.Gemini.MaxTokens,
			Temperature: in.Gemini.Temperature,
			Enabled:     in.Gemini.Enabled,
		}
		s.Gemini.Clamp()
	}
	return s
}

// LoadFile reads and deserializes the blob at path. A missing file yields an
// empty store.
func LoadFile(path string) *Store {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Config] Read %s: %v", path, err)
		}
		return NewStore()
	}
	return Deserialize(data)
}

// SaveFile serializes the store and writes it to path.
func (s *Store) SaveFile(path string) error {
	data, err := s.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// SeedFromEnv fills an empty API key from the GEMINI_API_KEY environment
// variable. The config stays disabled until the user turns it on.
func (s *Store) SeedFromEnv() {
	if s.Gemini.APIKey != "" {
		return
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		s.Gemini.APIKey = key
		log.Printf("[Config] Seeded Gemini API key from environment")
	}
}
