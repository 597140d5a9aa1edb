package models

// MemoryRecord is a vector-indexed text fragment tagged with its Context and
// Conversation. The Context tag is mandatory: every stored point carries it
// and every search filters on it.
type MemoryRecord struct {
	ID             string            `json:"id"`
	ContextID      string            `json:"context_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Text           string            `json:"text"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// MemoryResult is a search hit with its similarity score.
type MemoryResult struct {
	Record MemoryRecord `json:"record"`
	Score  float32      `json:"score"`
}
