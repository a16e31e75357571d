package estimate

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts embedding tokens for a batch of texts. Implementations are
// safe to call repeatedly; the encoder is cached internally.
type Counter interface {
	CountTokens(texts []string) (int64, error)
}

// TiktokenCounter wraps a tiktoken encoder. The encoder is constructed on
// first use and reused; each scheduler worker owns its own instance, so no
// cross-worker state exists.
type TiktokenCounter struct {
	model string
	enc   *tiktoken.Tiktoken
}

func NewCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (c *TiktokenCounter) CountTokens(texts []string) (int64, error) {
	if c.enc == nil {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			// Unknown model names fall back to the common base encoding.
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return 0, fmt.Errorf("failed to load token encoder: %w", err)
			}
		}
		c.enc = enc
	}
	var total int64
	for _, text := range texts {
		total += int64(len(c.enc.Encode(text, nil, nil)))
	}
	return total, nil
}
