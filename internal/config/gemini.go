package config

// Model is the symbolic name of a known Gemini model. The symbolic form is
// what gets persisted; ID() yields the wire identifier.
type Model string

const (
	ModelGemini25Flash     Model = "GEMINI_2_5_FLASH"
	ModelGemini25FlashLite Model = "GEMINI_2_5_FLASH_LITE"
	ModelGemini25Pro       Model = "GEMINI_2_5_PRO"
	ModelGemini20Flash     Model = "GEMINI_2_0_FLASH"
	ModelGemini20FlashLite Model = "GEMINI_2_0_FLASH_LITE"
)

// DefaultModel is used when a persisted symbol is unknown or absent.
const DefaultModel = ModelGemini25Flash

var modelIDs = map[Model]string{
	ModelGemini25Flash:     "gemini-2.5-flash",
	ModelGemini25FlashLite: "gemini-2.5-flash-lite",
	ModelGemini25Pro:       "gemini-2.5-pro",
	ModelGemini20Flash:     "gemini-2.0-flash",
	ModelGemini20FlashLite: "gemini-2.0-flash-lite",
}

// ID returns the wire model identifier sent to the API.
func (m Model) ID() string {
	if id, ok := modelIDs[m]; ok {
		return id
	}
	return modelIDs[DefaultModel]
}

// IsValid reports whether m names a known model.
func (m Model) IsValid() bool {
	_, ok := modelIDs[m]
	return ok
}

// ParseModel maps a persisted symbol to a Model, coercing unknown symbols to
// the default.
func ParseModel(symbol string) Model {
	m := Model(symbol)
	if m.IsValid() {
		return m
	}
	return DefaultModel
}

// Gemini bounds and defaults.
const (
	MinOutputTokens     = 1
	MaxOutputTokens     = 8192
	DefaultOutputTokens = 2048

	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	DefaultTemperature = 0.7
)

// GeminiConfig holds the LLM settings. The struct is comparable; structural
// equality drives the client cache in the gemini package.
type GeminiConfig struct {
	APIKey      string
	Model       Model
	MaxTokens   int
	Temperature float64
	Enabled     bool
}

// DefaultGeminiConfig returns the disabled default configuration.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:       DefaultModel,
		MaxTokens:   DefaultOutputTokens,
		Temperature: DefaultTemperature,
	}
}

// Clamp forces numeric fields into range and unknown models to the default.
// Applied on load and on every set.
func (g *GeminiConfig) Clamp() {
	if !g.Model.IsValid() {
		g.Model = DefaultModel
	}
	if g.MaxTokens < MinOutputTokens || g.MaxTokens > MaxOutputTokens {
		if g.MaxTokens == 0 {
			g.MaxTokens = DefaultOutputTokens
		} else if g.MaxTokens < MinOutputTokens {
			g.MaxTokens = MinOutputTokens
		} else {
			g.MaxTokens = MaxOutputTokens
		}
	}
	if g.Temperature < MinTemperature {
		g.Temperature = MinTemperature
	} else if g.Temperature > MaxTemperature {
		g.Temperature = MaxTemperature
	}
}

// IsConfigured reports whether the LLM surface may be used: enabled with
// credentials and a model set.
func (g GeminiConfig) IsConfigured() bool {
	return g.Enabled && g.APIKey != "" && g.Model != ""
}
