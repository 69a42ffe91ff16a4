// Package tokenizer provides accurate token counting for budget enforcement.
//
// Token counts are always computed from message content on demand; callers
// must never cache a count alongside the messages it was derived from, or
// the two will drift apart.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/engramhq/engram/pkg/types"
)

const encodingName = "cl100k_base"

// Tokenizer counts tokens using the cl100k_base encoding. When the encoding
// cannot be loaded (offline hosts without the cached BPE files), it degrades
// to a bytes/4 estimate rather than failing.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New creates a Tokenizer. It never fails: if the encoding is unavailable
// the returned Tokenizer uses the estimate fallback, and the error reports
// why so callers can log it.
func New() (*Tokenizer, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return &Tokenizer{}, err
	}
	return &Tokenizer{encoding: encoding}, nil
}

// CountTokens returns the token count of a single string.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if t.encoding == nil {
		return estimateTokens(text)
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessagesTokens returns the total token count across all message
// content. Role and metadata overhead is not counted; budgets in this
// system are content budgets.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.CountTokens(msg.Content)
	}
	return total
}

// estimateTokens is the fallback heuristic: roughly 4 bytes per token for
// English prose.
func estimateTokens(text string) int {
	return len(text) / 4
}
