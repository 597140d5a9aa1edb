package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-ai/conductor/pkg/models"
)

// NewMemoryStores returns an in-process StoreSet backed by maps.
// Used by tests and ephemeral deployments.
func NewMemoryStores() StoreSet {
	s := &memoryState{
		contexts:      make(map[string]*models.Context),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		permissions:   make(map[string][]*models.ToolPermission),
		tokens:        make(map[string][]*models.OAuthToken),
	}
	return StoreSet{
		Contexts:      (*memoryContexts)(s),
		Conversations: (*memoryConversations)(s),
		Messages:      (*memoryMessages)(s),
		Permissions:   (*memoryPermissions)(s),
		Tokens:        (*memoryTokens)(s),
	}
}

type memoryState struct {
	mu            sync.RWMutex
	contexts      map[string]*models.Context
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message // conversationID → turns
	permissions   map[string][]*models.ToolPermission
	tokens        map[string][]*models.OAuthToken
}

type memoryContexts memoryState

func (s *memoryContexts) Create(_ context.Context, c *models.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.contexts[c.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range s.contexts {
		if existing.Name == c.Name {
			return ErrAlreadyExists
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	s.contexts[c.ID] = &cp
	return nil
}

func (s *memoryContexts) Get(_ context.Context, id string) (*models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memoryContexts) GetByName(_ context.Context, name string) (*models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contexts {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryContexts) List(_ context.Context) ([]*models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Context, 0, len(s.contexts))
	for _, c := range s.contexts {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete cascades to conversations, messages, permissions, and tokens.
func (s *memoryContexts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[id]; !ok {
		return ErrNotFound
	}
	delete(s.contexts, id)
	for convID, conv := range s.conversations {
		if conv.ContextID == id {
			delete(s.conversations, convID)
			delete(s.messages, convID)
		}
	}
	delete(s.permissions, id)
	delete(s.tokens, id)
	return nil
}

type memoryConversations memoryState

func (s *memoryConversations) Upsert(_ context.Context, platform, platformID, contextID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.Platform == platform && conv.PlatformID == platformID {
			conv.UpdatedAt = time.Now()
			cp := *conv
			return &cp, nil
		}
	}
	now := time.Now()
	conv := &models.Conversation{
		ID:         uuid.NewString(),
		Platform:   platform,
		PlatformID: platformID,
		ContextID:  contextID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.conversations[conv.ID] = conv
	cp := *conv
	return &cp, nil
}

func (s *memoryConversations) Get(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

type memoryMessages memoryState

func (s *memoryMessages) Append(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	cp := *m
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &cp)
	return nil
}

func (s *memoryMessages) Recent(_ context.Context, conversationID string, n int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.messages[conversationID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]*models.Message, len(turns))
	for i, m := range turns {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

type memoryPermissions memoryState

func (s *memoryPermissions) List(_ context.Context, contextID string) ([]*models.ToolPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := s.permissions[contextID]
	out := make([]*models.ToolPermission, len(perms))
	for i, p := range perms {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func (s *memoryPermissions) Set(_ context.Context, p *models.ToolPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions[p.ContextID] {
		if existing.ToolName == p.ToolName {
			existing.Allowed = p.Allowed
			return nil
		}
	}
	cp := *p
	s.permissions[p.ContextID] = append(s.permissions[p.ContextID], &cp)
	return nil
}

type memoryTokens memoryState

func (s *memoryTokens) Get(_ context.Context, contextID, provider string) (*models.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens[contextID] {
		if t.Provider == provider {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryTokens) List(_ context.Context, contextID string) ([]*models.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	toks := s.tokens[contextID]
	out := make([]*models.OAuthToken, len(toks))
	for i, t := range toks {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}

func (s *memoryTokens) Put(_ context.Context, t *models.OAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tokens[t.ContextID] {
		if existing.Provider == t.Provider {
			cp := *t
			s.tokens[t.ContextID][i] = &cp
			return nil
		}
	}
	cp := *t
	s.tokens[t.ContextID] = append(s.tokens[t.ContextID], &cp)
	return nil
}
