package llm

const (
	grokChatURL = "https://api.x.ai/v1/chat/completions"
	grokModel   = "grok-3-mini"
)

// NewGrokClient returns a client for xAI's Grok models, which speak the
// OpenAI chat completions format.
func NewGrokClient(apiKey string) *OpenAIClient {
	return NewOpenAIClient(apiKey).WithEndpoint(grokChatURL, grokModel)
}
