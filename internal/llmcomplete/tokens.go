package llmcomplete

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	encOnce sync.Once
	enc     tokenizer.Codec
)

// CountTokens returns the token count of text using o200k_base, which is close enough for every provider we talk to. If the encoder is unavailable it estimates
// 4 bytes per token.
func CountTokens(text string) int {
	encOnce.Do(func() {
		enc, _ = tokenizer.Get(tokenizer.O200kBase)
	})
	if enc == nil {
		return len(text) / 4
	}
	count, err := enc.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
