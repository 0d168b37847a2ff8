package ai

import (
	"context"
	"encoding/base64"
)

// Runtime is implemented by every model backend. A call makes exactly one
// HTTP attempt; retrying is the caller's business.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used for selection.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// DefaultModel and DefaultTemperature are fixed by the caller, not per request.
const (
	DefaultModel       = "gemini-flash-lite-latest"
	DefaultTemperature = 0.7
)

// Message is one chat turn. Images are PNG bytes attached to the turn.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  [][]byte `json:"-"`
}

type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Text returns the content of the first choice.
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// UserMessage builds a single user turn with optional PNG images.
func UserMessage(text string, images ...[]byte) Message {
	m := Message{Role: "user", Content: text}
	for _, img := range images {
		if len(img) > 0 {
			m.Images = append(m.Images, img)
		}
	}
	return m
}

func encodeImage(png []byte) string {
	return base64.StdEncoding.EncodeToString(png)
}
