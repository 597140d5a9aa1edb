// Package models provides domain types for the Conductor agent core.
package models

import (
	"time"
)

// Context is the tenant boundary. Every conversation, message, memory record,
// OAuth token, and tool permission belongs to exactly one Context; no entity
// is visible across Contexts.
type Context struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	WorkingDir  string         `json:"working_dir,omitempty"`
	PinnedFiles []string       `json:"pinned_files,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Conversation is a chat thread within a Context.
type Conversation struct {
	ID         string         `json:"id"`
	Platform   string         `json:"platform"`
	PlatformID string         `json:"platform_id"`
	ContextID  string         `json:"context_id"`
	WorkingDir string         `json:"working_dir,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single turn in a Conversation. Append-only in practice.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	TraceID        string    `json:"trace_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToolPermission grants or revokes a tool for a Context.
// Absence of a permission row means the tool is allowed.
type ToolPermission struct {
	ContextID string `json:"context_id"`
	ToolName  string `json:"tool_name"`
	Allowed   bool   `json:"allowed"`
}

// OAuthToken holds a per-Context credential for an external provider.
// Tokens are never exposed outside the process and are redacted in every
// outbound event.
type OAuthToken struct {
	ContextID    string    `json:"context_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// Expired reports whether the token has a known expiry in the past.
func (t *OAuthToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now)
}
