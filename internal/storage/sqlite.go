package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/conductor-ai/conductor/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contexts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT '',
	config TEXT NOT NULL DEFAULT '{}',
	working_dir TEXT NOT NULL DEFAULT '',
	pinned_files TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	platform TEXT NOT NULL,
	platform_id TEXT NOT NULL,
	context_id TEXT NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
	working_dir TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (platform, platform_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE TABLE IF NOT EXISTS tool_permissions (
	context_id TEXT NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
	tool_name TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	PRIMARY KEY (context_id, tool_name)
);
CREATE TABLE IF NOT EXISTS oauth_tokens (
	context_id TEXT NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
	provider TEXT NOT NULL,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMP,
	scope TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (context_id, provider)
);
`

// NewSQLiteStores opens (and migrates) a sqlite-backed StoreSet.
func NewSQLiteStores(path string) (StoreSet, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return StoreSet{}, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return StoreSet{}, fmt.Errorf("migrate sqlite: %w", err)
	}
	s := &sqliteState{db: db}
	return StoreSet{
		Contexts:      (*sqliteContexts)(s),
		Conversations: (*sqliteConversations)(s),
		Messages:      (*sqliteMessages)(s),
		Permissions:   (*sqlitePermissions)(s),
		Tokens:        (*sqliteTokens)(s),
		closer:        db.Close,
	}, nil
}

type sqliteState struct {
	db *sql.DB
}

func marshalJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

type sqliteContexts sqliteState

func (s *sqliteContexts) Create(ctx context.Context, c *models.Context) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	pinned, _ := json.Marshal(c.PinnedFiles)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts (id, name, type, config, working_dir, pinned_files, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, marshalJSON(c.Config), c.WorkingDir, string(pinned), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	return nil
}

func (s *sqliteContexts) scanOne(row *sql.Row) (*models.Context, error) {
	var c models.Context
	var cfg, pinned string
	err := row.Scan(&c.ID, &c.Name, &c.Type, &cfg, &c.WorkingDir, &pinned, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(cfg), &c.Config)
	_ = json.Unmarshal([]byte(pinned), &c.PinnedFiles)
	return &c, nil
}

func (s *sqliteContexts) Get(ctx context.Context, id string) (*models.Context, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, name, type, config, working_dir, pinned_files, created_at FROM contexts WHERE id = ?`, id))
}

func (s *sqliteContexts) GetByName(ctx context.Context, name string) (*models.Context, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, name, type, config, working_dir, pinned_files, created_at FROM contexts WHERE name = ?`, name))
}

func (s *sqliteContexts) List(ctx context.Context) ([]*models.Context, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, config, working_dir, pinned_files, created_at FROM contexts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Context
	for rows.Next() {
		var c models.Context
		var cfg, pinned string
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &cfg, &c.WorkingDir, &pinned, &c.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(cfg), &c.Config)
		_ = json.Unmarshal([]byte(pinned), &c.PinnedFiles)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *sqliteContexts) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqliteConversations sqliteState

func (s *sqliteConversations) Upsert(ctx context.Context, platform, platformID, contextID string) (*models.Conversation, error) {
	now := time.Now()
	conv := &models.Conversation{
		ID:         uuid.NewString(),
		Platform:   platform,
		PlatformID: platformID,
		ContextID:  contextID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, platform, platform_id, context_id, working_dir, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', '{}', ?, ?)
		 ON CONFLICT (platform, platform_id) DO UPDATE SET updated_at = excluded.updated_at`,
		conv.ID, platform, platformID, contextID, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}
	return s.getBy(ctx, `platform = ? AND platform_id = ?`, platform, platformID)
}

func (s *sqliteConversations) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return s.getBy(ctx, `id = ?`, id)
}

func (s *sqliteConversations) getBy(ctx context.Context, where string, args ...any) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, platform, platform_id, context_id, working_dir, metadata, created_at, updated_at
		 FROM conversations WHERE `+where, args...)
	var c models.Conversation
	var meta string
	err := row.Scan(&c.ID, &c.Platform, &c.PlatformID, &c.ContextID, &c.WorkingDir, &meta, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(meta), &c.Metadata)
	return &c, nil
}

type sqliteMessages sqliteState

func (s *sqliteMessages) Append(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, trace_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, m.TraceID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *sqliteMessages) Recent(ctx context.Context, conversationID string, n int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, trace_id, created_at
		 FROM (SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?)
		 ORDER BY created_at ASC, id ASC`,
		conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Message
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.TraceID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}

type sqlitePermissions sqliteState

func (s *sqlitePermissions) List(ctx context.Context, contextID string) ([]*models.ToolPermission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT context_id, tool_name, allowed FROM tool_permissions WHERE context_id = ?`, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ToolPermission
	for rows.Next() {
		var p models.ToolPermission
		if err := rows.Scan(&p.ContextID, &p.ToolName, &p.Allowed); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *sqlitePermissions) Set(ctx context.Context, p *models.ToolPermission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_permissions (context_id, tool_name, allowed) VALUES (?, ?, ?)
		 ON CONFLICT (context_id, tool_name) DO UPDATE SET allowed = excluded.allowed`,
		p.ContextID, p.ToolName, p.Allowed)
	return err
}

type sqliteTokens sqliteState

func (s *sqliteTokens) Get(ctx context.Context, contextID, provider string) (*models.OAuthToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT context_id, provider, access_token, refresh_token, expires_at, scope
		 FROM oauth_tokens WHERE context_id = ? AND provider = ?`, contextID, provider)
	var t models.OAuthToken
	var expires sql.NullTime
	err := row.Scan(&t.ContextID, &t.Provider, &t.AccessToken, &t.RefreshToken, &expires, &t.Scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t.ExpiresAt = expires.Time
	}
	return &t, nil
}

func (s *sqliteTokens) List(ctx context.Context, contextID string) ([]*models.OAuthToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT context_id, provider, access_token, refresh_token, expires_at, scope
		 FROM oauth_tokens WHERE context_id = ?`, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.OAuthToken
	for rows.Next() {
		var t models.OAuthToken
		var expires sql.NullTime
		if err := rows.Scan(&t.ContextID, &t.Provider, &t.AccessToken, &t.RefreshToken, &expires, &t.Scope); err != nil {
			return nil, err
		}
		if expires.Valid {
			t.ExpiresAt = expires.Time
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *sqliteTokens) Put(ctx context.Context, t *models.OAuthToken) error {
	var expires any
	if !t.ExpiresAt.IsZero() {
		expires = t.ExpiresAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (context_id, provider, access_token, refresh_token, expires_at, scope)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (context_id, provider) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   expires_at = excluded.expires_at,
		   scope = excluded.scope`,
		t.ContextID, t.Provider, t.AccessToken, t.RefreshToken, expires, t.Scope)
	return err
}
