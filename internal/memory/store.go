package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/conductor-ai/conductor/pkg/models"
)

// Manager owns the vector collection and hands out context-bound stores.
type Manager struct {
	vectors    VectorClient
	embedder   Embedder
	collection string
	logger     *slog.Logger
}

// NewManager creates the manager and ensures the collection exists.
func NewManager(ctx context.Context, vectors VectorClient, embedder Embedder, collection string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = "memories"
	}
	if err := vectors.EnsureCollection(ctx, collection, embedder.Dimension()); err != nil {
		return nil, err
	}
	return &Manager{
		vectors:    vectors,
		embedder:   embedder,
		collection: collection,
		logger:     logger.With("component", "memory"),
	}, nil
}

// ForContext returns a store bound to one context. Every operation on the
// store carries the context filter; there is no unscoped access path.
func (m *Manager) ForContext(contextID string) *Store {
	return &Store{manager: m, contextID: contextID}
}

// DeleteContext removes every memory belonging to a context.
func (m *Manager) DeleteContext(ctx context.Context, contextID string) error {
	return m.vectors.DeleteByContext(ctx, m.collection, contextID)
}

// Close releases the vector client.
func (m *Manager) Close() error {
	return m.vectors.Close()
}

// Store reads and writes memories for exactly one context.
type Store struct {
	manager   *Manager
	contextID string
}

// ContextID returns the context this store is bound to.
func (s *Store) ContextID() string { return s.contextID }

// Save embeds and persists a memory, returning its id.
func (s *Store) Save(ctx context.Context, conversationID, text string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("memory: nothing to save")
	}
	vector, err := s.manager.embedder.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	record := models.MemoryRecord{
		ID:             uuid.New().String(),
		ContextID:      s.contextID,
		ConversationID: conversationID,
		Text:           text,
		Metadata:       metadata,
	}
	if err := s.manager.vectors.Upsert(ctx, s.manager.collection, record, vector); err != nil {
		return "", err
	}
	s.manager.logger.Debug("memory saved",
		"context_id", s.contextID,
		"memory_id", record.ID,
		"chars", len(text))
	return record.ID, nil
}

// Search returns the memories most similar to the query, scoped to the bound
// context. A non-empty conversationID narrows results further.
func (s *Store) Search(ctx context.Context, query, conversationID string, limit int) ([]models.MemoryResult, error) {
	if limit <= 0 {
		limit = 5
	}
	vector, err := s.manager.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := s.manager.vectors.Search(ctx, s.manager.collection, vector, SearchFilter{
		ContextID:      s.contextID,
		ConversationID: conversationID,
	}, limit)
	if err != nil {
		return nil, err
	}
	// The filter already scopes the query; drop anything foreign anyway.
	scoped := results[:0]
	for _, r := range results {
		if r.Record.ContextID == s.contextID {
			scoped = append(scoped, r)
		}
	}
	return scoped, nil
}
