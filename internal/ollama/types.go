package ollama

// Message is one conversation turn in the chat-shaped contract.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ChatResponse is the buffered reply of POST /api/chat.
type ChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`

	PromptEvalCount uint64 `json:"prompt_eval_count,omitempty"`
	EvalCount       uint64 `json:"eval_count,omitempty"`
}

// GenerateResponse is the buffered reply of POST /api/generate.
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`

	PromptEvalCount uint64 `json:"prompt_eval_count,omitempty"`
	EvalCount       uint64 `json:"eval_count,omitempty"`
}
