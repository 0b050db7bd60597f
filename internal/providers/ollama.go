package providers

import "strings"

// NewOllamaEmbeddingProvider uses a local Ollama server through its OpenAI-compatible /v1 API.
// The provider list alias selects the model, e.g. "ollama:nomic" or "ollama:bge-m3".
func NewOllamaEmbeddingProvider(alias, baseURL, defaultModel string) *OpenAIProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}
	return newCompatibleProvider("ollama", OpenAIOptions{
		KeyName:    alias,
		APIKey:     "ollama",
		BaseURL:    strings.TrimRight(baseURL, "/") + "/v1",
		EmbedModel: ResolveOllamaEmbedModel(alias, defaultModel),
	})
}

func ResolveOllamaEmbedModel(alias, defaultModel string) string {
	alias = strings.TrimSpace(alias)
	switch strings.ToLower(alias) {
	case "":
	case "nomic":
		return "nomic-embed-text"
	case "bge":
		return "bge-m3"
	default:
		// ollama:mxbai-embed-large names the model directly.
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	if strings.TrimSpace(defaultModel) != "" {
		return defaultModel
	}
	return "nomic-embed-text"
}
