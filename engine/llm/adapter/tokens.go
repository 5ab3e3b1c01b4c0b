package llmadapter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens approximates the token cost of text. It uses the cl100k
// encoding when available and falls back to the rough four-characters-per-
// token heuristic, so estimation never fails a call.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	encoderOnce.Do(func() {
		if tke, err := tiktoken.GetEncoding(defaultEncoding); err == nil {
			encoder = tke
		}
	})
	if encoder != nil {
		return len(encoder.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}
