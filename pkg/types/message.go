// Package types defines the shared record types exchanged between the
// memory, context, and llm packages.
package types

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single ordered record in a working context. Content is the
// full text payload; Metadata carries compaction markers such as
// "summarized" and "truncation_marker" without widening the struct.
type Message struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// WithMetadata returns the message with the given metadata key set,
// allocating the metadata map on first use. It returns the receiver to
// allow chaining at construction sites.
func (m *Message) WithMetadata(key string, value any) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
	return m
}

// MetadataBool reads a boolean metadata value, returning false when the key
// is absent or holds a different type.
func (m *Message) MetadataBool(key string) bool {
	if m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata[key].(bool)
	return ok && v
}

// ModelInfo describes an LLM backend for inspection and logging.
type ModelInfo struct {
	Provider          string         `json:"provider"`
	Name              string         `json:"name"`
	MaxTokens         int            `json:"max_tokens"`
	SupportsStreaming bool           `json:"supports_streaming"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
