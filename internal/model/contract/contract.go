package contract

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	JSON      bool      `json:"json,omitempty"` // ask the provider for a single JSON object
	MaxTokens int       `json:"max_tokens,omitempty"`
	// Temperature nil keeps the provider default.
	Temperature *float32 `json:"temperature,omitempty"`
}

type CompletionResponse struct {
	Content string `json:"content"`
}
