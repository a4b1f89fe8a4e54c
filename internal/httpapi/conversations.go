package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/mfiorillo/choir/internal/memory"
)

const previewMaxChars = 100

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.CreateSession(r.Context())
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
	})
}

type conversationSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}

	out := make([]conversationSummary, 0, len(summaries))
	for _, sm := range summaries {
		out = append(out, conversationSummary{
			ID:           sm.ID,
			CreatedAt:    sm.CreatedAt,
			UpdatedAt:    sm.UpdatedAt,
			Preview:      preview(sm.LastMessage),
			MessageCount: sm.MessageCount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type providerHistory struct {
	ProviderName string           `json:"provider_name"`
	Messages     []historyMessage `json:"messages"`
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, memory.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}

	turns, err := s.store.ListTurns(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}
	factsList, err := s.store.ListFacts(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}

	messagesByProvider := make(map[string]*providerHistory)
	for _, t := range turns {
		h, ok := messagesByProvider[t.ProviderID]
		if !ok {
			h = &providerHistory{ProviderName: s.providerName(t.ProviderID)}
			messagesByProvider[t.ProviderID] = h
		}
		h.Messages = append(h.Messages, historyMessage{
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: t.CreatedAt,
		})
	}

	memoryByProvider := make(map[string]map[string]string)
	for _, f := range factsList {
		if memoryByProvider[f.ProviderID] == nil {
			memoryByProvider[f.ProviderID] = make(map[string]string)
		}
		memoryByProvider[f.ProviderID][f.Key] = f.Value
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":           sess.ID,
		"messages_by_provider": messagesByProvider,
		"memory_by_provider":   memoryByProvider,
		"created_at":           sess.CreatedAt,
		"updated_at":           sess.UpdatedAt,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, memory.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

type memoryUpdateRequest struct {
	Memory map[string]string `json:"memory"`
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	providerID := chi.URLParam(r, "providerID")
	ctx := r.Context()

	var req memoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Memory) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "memory map must not be empty")
		return
	}

	if _, err := s.store.GetSession(ctx, id); err != nil {
		if errors.Is(err, memory.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}
	for key, value := range req.Memory {
		if err := tx.UpsertFact(ctx, id, providerID, key, value); err != nil {
			_ = tx.Rollback(ctx)
			respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
			return
		}
	}
	if err := tx.TouchSession(ctx, id); err != nil {
		_ = tx.Rollback(ctx)
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}
	if err := tx.Commit(ctx); err != nil {
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"updated": len(req.Memory)})
}

func (s *Server) providerName(providerID string) string {
	if a, ok := s.registry.Get(providerID); ok {
		return a.Descriptor().Name
	}
	return providerID
}

// preview truncates by runes, not bytes, so multibyte text is never cut
// mid-sequence.
func preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= previewMaxChars {
		return content
	}
	return string([]rune(content)[:previewMaxChars]) + "..."
}
