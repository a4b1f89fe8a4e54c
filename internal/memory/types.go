package memory

import (
	"context"
	"errors"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one comparison conversation spanning one or more providers.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastMessage  string    `json:"last_message"`
	MessageCount int       `json:"message_count"`
}

// Turn is one message inside a single provider's view of a session.
// Turns are immutable once committed.
type Turn struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ProviderID string    `json:"provider_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Fact is a durable piece of extracted user information, unique per
// (session, provider, key).
type Fact struct {
	SessionID  string    `json:"session_id"`
	ProviderID string    `json:"provider_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists sessions, turns and provider-scoped facts. All writes go
// through a Tx so that a whole prompt cycle commits or rolls back as a unit.
type Store interface {
	CreateSession(ctx context.Context) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// GetTurns returns one provider's turn stream in chronological order,
	// ties broken by insertion order.
	GetTurns(ctx context.Context, sessionID, providerID string) ([]Turn, error)
	// ListTurns returns every turn of the session across providers.
	ListTurns(ctx context.Context, sessionID string) ([]Turn, error)

	GetFacts(ctx context.Context, sessionID, providerID string) (map[string]string, error)
	ListFacts(ctx context.Context, sessionID string) ([]Fact, error)

	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx stages writes for one prompt cycle. Nothing staged is visible to reads
// until Commit; Rollback discards everything.
type Tx interface {
	AppendTurn(ctx context.Context, sessionID, providerID, role, content string) error
	UpsertFact(ctx context.Context, sessionID, providerID, key, value string) error
	TouchSession(ctx context.Context, sessionID string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
