package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	turns    map[string][]Turn // keyed by session id, in insertion order
	facts    map[string]map[factKey]Fact
}

type factKey struct {
	providerID string
	key        string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]Session),
		turns:    make(map[string][]Turn),
		facts:    make(map[string]map[factKey]Fact),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context) (Session, error) {
	now := time.Now().UTC()
	sess := Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *InMemoryStore) ListSessions(_ context.Context) ([]SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionSummary, 0, len(s.sessions))
	for id, sess := range s.sessions {
		summary := SessionSummary{
			ID:           id,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
			MessageCount: len(s.turns[id]),
		}
		if turns := s.turns[id]; len(turns) > 0 {
			summary.LastMessage = turns[len(turns)-1].Content
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// DeleteSession cascades: turns and facts never outlive their session.
func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	delete(s.facts, sessionID)
	return nil
}

func (s *InMemoryStore) GetTurns(_ context.Context, sessionID, providerID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Turn
	for _, t := range s.turns[sessionID] {
		if t.ProviderID == providerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns[sessionID]...), nil
}

func (s *InMemoryStore) GetFacts(_ context.Context, sessionID, providerID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for k, f := range s.facts[sessionID] {
		if k.providerID == providerID {
			out[k.key] = f.Value
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListFacts(_ context.Context, sessionID string) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Fact, 0, len(s.facts[sessionID]))
	for _, f := range s.facts[sessionID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderID != out[j].ProviderID {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Begin stages writes in a private buffer applied atomically on Commit.
func (s *InMemoryStore) Begin(_ context.Context) (Tx, error) {
	return &inMemoryTx{store: s}, nil
}

func (s *InMemoryStore) Close() error { return nil }

type stagedFact struct {
	sessionID  string
	providerID string
	key        string
	value      string
}

type inMemoryTx struct {
	store    *InMemoryStore
	turns    []Turn
	facts    []stagedFact
	touched  []string
	finished bool
}

func (tx *inMemoryTx) AppendTurn(_ context.Context, sessionID, providerID, role, content string) error {
	tx.turns = append(tx.turns, Turn{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		ProviderID: providerID,
		Role:       role,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	})
	return nil
}

func (tx *inMemoryTx) UpsertFact(_ context.Context, sessionID, providerID, key, value string) error {
	tx.facts = append(tx.facts, stagedFact{sessionID, providerID, key, value})
	return nil
}

func (tx *inMemoryTx) TouchSession(_ context.Context, sessionID string) error {
	tx.touched = append(tx.touched, sessionID)
	return nil
}

func (tx *inMemoryTx) Commit(_ context.Context) error {
	if tx.finished {
		return nil
	}
	tx.finished = true

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sessionID := range append(tx.touched, turnSessions(tx.turns)...) {
		if _, ok := s.sessions[sessionID]; !ok {
			return ErrSessionNotFound
		}
	}

	now := time.Now().UTC()
	for _, t := range tx.turns {
		s.turns[t.SessionID] = append(s.turns[t.SessionID], t)
	}
	for _, f := range tx.facts {
		byKey := s.facts[f.sessionID]
		if byKey == nil {
			byKey = make(map[factKey]Fact)
			s.facts[f.sessionID] = byKey
		}
		k := factKey{providerID: f.providerID, key: f.key}
		if existing, ok := byKey[k]; ok {
			existing.Value = f.value
			existing.UpdatedAt = now
			byKey[k] = existing
		} else {
			byKey[k] = Fact{
				SessionID:  f.sessionID,
				ProviderID: f.providerID,
				Key:        f.key,
				Value:      f.value,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		}
	}
	for _, sessionID := range tx.touched {
		sess := s.sessions[sessionID]
		sess.UpdatedAt = now
		s.sessions[sessionID] = sess
	}
	return nil
}

func (tx *inMemoryTx) Rollback(_ context.Context) error {
	tx.finished = true
	tx.turns = nil
	tx.facts = nil
	tx.touched = nil
	return nil
}

func turnSessions(turns []Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.SessionID)
	}
	return out
}
