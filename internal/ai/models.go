package ai

import "sort"

// ModelInfo carries the context window and illustrative pricing of a model,
// used to size dataset prompts and report rough costs.
type ModelInfo struct {
	Name          string  `json:"name" yaml:"name"`
	ContextTokens int     `json:"context_tokens" yaml:"context_tokens"`
	InputPerK     float64 `json:"input_per_k" yaml:"input_per_k"`   // USD per 1K input tokens
	OutputPerK    float64 `json:"output_per_k" yaml:"output_per_k"` // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	// Groq
	"openai/gpt-oss-120b":     {Name: "openai/gpt-oss-120b", ContextTokens: 131072, InputPerK: 0.00015, OutputPerK: 0.00075},
	"openai/gpt-oss-20b":      {Name: "openai/gpt-oss-20b", ContextTokens: 131072, InputPerK: 0.0001, OutputPerK: 0.0005},
	"llama-3.3-70b-versatile": {Name: "llama-3.3-70b-versatile", ContextTokens: 131072, InputPerK: 0.00059, OutputPerK: 0.00079},
	"llama-3.1-8b-instant":    {Name: "llama-3.1-8b-instant", ContextTokens: 131072, InputPerK: 0.00005, OutputPerK: 0.00008},
	// OpenRouter / OpenAI
	"openai/gpt-4o-mini": {Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	"gpt-4o-mini":        {Name: "gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	// Ollama tags
	"llama3:latest": {Name: "llama3:latest", ContextTokens: 8192},
	"llama3.1:8b":   {Name: "llama3.1:8b", ContextTokens: 8192},
	"mistral:7b":    {Name: "mistral:7b", ContextTokens: 8192},
	"phi3:mini-4k":  {Name: "phi3:mini-4k", ContextTokens: 4096},
	"qwen2.5:7b":    {Name: "qwen2.5:7b", ContextTokens: 32768},
	"gpt-oss:20b":   {Name: "gpt-oss:20b", ContextTokens: 131072},
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

// Catalog returns the known models sorted by name.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, v := range models {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
