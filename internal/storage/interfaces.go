// Package storage defines relational persistence for contexts, conversations,
// messages, tool permissions, and OAuth tokens.
package storage

import (
	"context"
	"errors"

	"github.com/conductor-ai/conductor/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ContextStore persists tenant contexts.
// Delete cascades to conversations, messages, permissions, and tokens.
type ContextStore interface {
	Create(ctx context.Context, c *models.Context) error
	Get(ctx context.Context, id string) (*models.Context, error)
	GetByName(ctx context.Context, name string) (*models.Context, error)
	List(ctx context.Context) ([]*models.Context, error)
	Delete(ctx context.Context, id string) error
}

// ConversationStore persists chat threads.
type ConversationStore interface {
	// Upsert finds the conversation for (platform, platformID) or creates it
	// bound to contextID.
	Upsert(ctx context.Context, platform, platformID, contextID string) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
}

// MessageStore persists conversation turns.
type MessageStore interface {
	Append(ctx context.Context, m *models.Message) error

	// Recent returns up to n most recent messages in chronological order.
	Recent(ctx context.Context, conversationID string, n int) ([]*models.Message, error)
}

// PermissionStore persists per-context tool permissions.
type PermissionStore interface {
	List(ctx context.Context, contextID string) ([]*models.ToolPermission, error)
	Set(ctx context.Context, p *models.ToolPermission) error
}

// TokenStore persists per-context OAuth tokens.
type TokenStore interface {
	Get(ctx context.Context, contextID, provider string) (*models.OAuthToken, error)
	List(ctx context.Context, contextID string) ([]*models.OAuthToken, error)
	Put(ctx context.Context, t *models.OAuthToken) error
}

// StoreSet groups the storage dependencies handed to per-request services.
type StoreSet struct {
	Contexts      ContextStore
	Conversations ConversationStore
	Messages      MessageStore
	Permissions   PermissionStore
	Tokens        TokenStore

	closer func() error
}

// Close releases underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
