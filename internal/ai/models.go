package ai

// Model metadata used to warn about oversized prompts and to log rough costs.
// Prices are illustrative.

type ModelInfo struct {
	Name          string  `json:"name"`
	ContextTokens int     `json:"context_tokens"` // approximate context window
	InputPerK     float64 `json:"input_per_1k"`   // USD per 1K input tokens
	OutputPerK    float64 `json:"output_per_1k"`  // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	"gemini-flash-lite-latest": {Name: "gemini-flash-lite-latest", ContextTokens: 1000000, InputPerK: 0.0001, OutputPerK: 0.0004},
	"gemini-flash-latest":      {Name: "gemini-flash-latest", ContextTokens: 1000000, InputPerK: 0.0003, OutputPerK: 0.0025},
	"gemini-2.5-pro":           {Name: "gemini-2.5-pro", ContextTokens: 1000000, InputPerK: 0.00125, OutputPerK: 0.01},
	"google/gemini-2.5-flash":  {Name: "google/gemini-2.5-flash", ContextTokens: 1000000, InputPerK: 0.0003, OutputPerK: 0.0025},
	"openai/gpt-4o-mini":       {Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	"llava:latest":             {Name: "llava:latest", ContextTokens: 4096},
	"llama3.2-vision:latest":   {Name: "llama3.2-vision:latest", ContextTokens: 128000},
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// Catalog returns a copy of the known models keyed by name.
func Catalog() map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
