// Package context implements the working context — an ordered, token-
// budgeted message sequence — and the compaction pipeline that keeps it
// under budget through an escalating sequence of strategies.
package context

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/llm/tokenizer"
	"github.com/engramhq/engram/pkg/logging"
	"github.com/engramhq/engram/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("compactor")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		debugLog.Warnf("Failed to initialize compactor logger, using stderr fallback: %v", err)
	}
}

// ProtectionClass tags a working context's compaction policy.
type ProtectionClass string

const (
	// ProtectionStandard contexts are fully subject to the compaction
	// pipeline.
	ProtectionStandard ProtectionClass = "standard"
	// ProtectionNeverForget contexts are exempt from all destructive
	// compaction: the compactor may read them but only ever warns. The
	// caller is responsible for provisioning enough budget.
	ProtectionNeverForget ProtectionClass = "never-forget"
)

// WorkingContext is an ordered sequence of messages with a declared token
// budget. Messages are append-only during normal operation; only the
// compactor rewrites them.
//
// The token count is never stored: it is recomputed from the messages on
// every call so it cannot drift from the actual content.
type WorkingContext struct {
	ID               string
	ContextType      string
	Protection       ProtectionClass
	IdentityCritical bool
	MaxTokens        int

	messages []*types.Message
	tok      *tokenizer.Tokenizer
	path     string
}

// New creates an empty working context configured per cfg.
func New(id, contextType string, cfg config.ContextConfig, tok *tokenizer.Tokenizer) *WorkingContext {
	protection := ProtectionClass(cfg.Protection)
	if protection == "" {
		protection = ProtectionStandard
	}
	return &WorkingContext{
		ID:               id,
		ContextType:      contextType,
		Protection:       protection,
		IdentityCritical: cfg.IdentityCritical,
		MaxTokens:        cfg.MaxTokens,
		tok:              tok,
	}
}

// Append adds a message to the end of the context.
func (w *WorkingContext) Append(msg *types.Message) {
	w.messages = append(w.messages, msg)
}

// Messages returns a copy of the message slice. Mutating the returned
// slice does not affect the context; mutating the messages themselves does.
func (w *WorkingContext) Messages() []*types.Message {
	out := make([]*types.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Len returns the number of messages.
func (w *WorkingContext) Len() int { return len(w.messages) }

// SetMessages replaces the full message sequence. Only compaction
// strategies call this; everything else appends.
func (w *WorkingContext) SetMessages(messages []*types.Message) {
	w.messages = messages
}

// TokenCount recomputes the total token count from the current messages.
// There is deliberately no cached counterpart to this method.
func (w *WorkingContext) TokenCount() int {
	return w.tok.CountMessagesTokens(w.messages)
}

// persistedContext is the on-disk JSON document shape.
type persistedContext struct {
	ID               string           `json:"id"`
	ContextType      string           `json:"context_type"`
	Protection       ProtectionClass  `json:"protection"`
	IdentityCritical bool             `json:"identity_critical"`
	MaxTokens        int              `json:"max_tokens"`
	LastModified     time.Time        `json:"last_modified"`
	Messages         []*types.Message `json:"messages"`
}

// Load reads a working context from path. A missing or corrupt file yields
// a fresh empty context under the given configuration — a warning is
// logged for corruption, but a damaged context file must never crash the
// host.
func Load(path, id, contextType string, cfg config.ContextConfig, tok *tokenizer.Tokenizer) *WorkingContext {
	w := New(id, contextType, cfg, tok)
	w.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return w
	}
	if err != nil {
		debugLog.Warnf("context %s unreadable, starting empty: %v", path, err)
		return w
	}

	var doc persistedContext
	if err := json.Unmarshal(data, &doc); err != nil {
		debugLog.Warnf("context %s corrupt, starting empty: %v", path, err)
		return w
	}

	w.messages = doc.Messages
	// Persisted budget and protection win over config defaults so a
	// context keeps its declared policy across config edits.
	if doc.MaxTokens > 0 {
		w.MaxTokens = doc.MaxTokens
	}
	if doc.Protection != "" {
		w.Protection = doc.Protection
	}
	w.IdentityCritical = w.IdentityCritical || doc.IdentityCritical
	return w
}

// Save writes the context atomically (temp file then rename).
func (w *WorkingContext) Save(path string) error {
	if path == "" {
		path = w.path
	}
	if path == "" {
		return fmt.Errorf("context: no path for context %s", w.ID)
	}
	w.path = path

	doc := persistedContext{
		ID:               w.ID,
		ContextType:      w.ContextType,
		Protection:       w.Protection,
		IdentityCritical: w.IdentityCritical,
		MaxTokens:        w.MaxTokens,
		LastModified:     time.Now().UTC(),
		Messages:         w.messages,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("context: marshal %s: %w", w.ID, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("context: create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("context: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("context: atomic rename %s: %w", path, err)
	}
	return nil
}
