package entity

import "encoding/json"

// ChatMessage is an OpenAI chat message
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is what the workflow asks a model connector for
type ChatRequest struct {
	Stage    Stage
	Messages []ChatMessage
}

// ChatResult is a completed model call. JSON is set in JSON mode only.
type ChatResult struct {
	Content string
	JSON    json.RawMessage
	Usage   *TokenUsage
}

// StreamHandler receives incremental output of a streaming call.
// Both callbacks are optional.
type StreamHandler struct {
	OnDelta func(delta string)
	OnUsage func(usage TokenUsage)
}

func (h StreamHandler) Delta(delta string) {
	if h.OnDelta != nil && delta != "" {
		h.OnDelta(delta)
	}
}

func (h StreamHandler) Usage(usage TokenUsage) {
	if h.OnUsage != nil {
		h.OnUsage(usage)
	}
}

// ChatCompletionRequest is the POST /chat/completions body
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *StreamOptions  `json:"stream_options,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionResponse is the buffered /chat/completions response
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Usage   *TokenUsage  `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed /chat/completions frame
type ChatCompletionChunk struct {
	ID      string            `json:"id"`
	Choices []ChatChunkChoice `json:"choices"`
	Usage   *TokenUsage       `json:"usage"`
	Error   *APIError         `json:"error,omitempty"`
}

// APIError is the error object some backends emit inside an open stream
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type ChatChunkChoice struct {
	Index        int       `json:"index"`
	Delta        ChatDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// EmbeddingRequest is the POST /embeddings body
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse is the /embeddings response
type EmbeddingResponse struct {
	Data  []EmbeddingData `json:"data"`
	Model string          `json:"model"`
	Usage *TokenUsage     `json:"usage"`
}

type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}
