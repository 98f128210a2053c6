package oracle

import "errors"

// Error kinds. Callers are expected to treat ErrUnavailable and ErrMalformed
// identically: both trigger the documented deterministic fallback.
var (
	ErrUnavailable = errors.New("oracle unavailable")
	ErrMalformed   = errors.New("oracle returned malformed output")
)

type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature,omitempty"`
}

type CompletionResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}
