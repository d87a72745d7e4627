// File: internal/contextmgr/tokenizer.go
package contextmgr

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter abstracts token counting so tests can run without the
// tiktoken vocabulary files.
type TokenCounter interface {
	Count(text string) int
}

// estimateTokens is the universal fallback: roughly four characters per
// token, never zero for non-empty text.
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// TiktokenCounter counts tokens with a tiktoken encoding, initialized
// lazily because fetching the vocabulary can hit the network. On init
// failure it degrades to the len/4 estimate permanently.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenCounter creates a counter for the given encoding name.
// An empty name selects cl100k_base.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

func (t *TiktokenCounter) init() {
	t.once.Do(func() {
		t.enc, t.initErr = tiktoken.GetEncoding(t.encoding)
	})
}

// Count returns the token count for text.
func (t *TiktokenCounter) Count(text string) int {
	t.init()
	if t.initErr != nil || t.enc == nil {
		return estimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateCounter is a deterministic counter for tests and offline use.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int { return estimateTokens(text) }
