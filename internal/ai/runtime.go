package ai

import "context"

// Runtime is a minimal interface implemented by hosted chat endpoints and
// local runtimes such as Ollama.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
)

var baseURLs = map[string]string{
	ProviderGroq:       "https://api.groq.com/openai/v1",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderOpenAI:     "https://api.openai.com/v1",
}

// BaseURL returns the default OpenAI-compatible endpoint of a provider,
// falling back to Groq.
func BaseURL(provider string) string {
	if u, ok := baseURLs[provider]; ok {
		return u
	}
	return baseURLs[ProviderGroq]
}
