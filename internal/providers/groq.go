package providers

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewGroqProvider builds a chat provider on Groq's OpenAI-compatible endpoint. Groq has no
// embeddings API, so the embed model is left empty.
func NewGroqProvider(keyName, apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	return newCompatibleProvider("groq", OpenAIOptions{
		KeyName:   keyName,
		APIKey:    apiKey,
		BaseURL:   groqBaseURL,
		ChatModel: model,
	})
}
