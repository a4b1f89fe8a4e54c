package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mfiorillo/choir/internal/memory"
	"github.com/mfiorillo/choir/internal/orchestrator"
	"github.com/mfiorillo/choir/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 1 << 20
)

// handleResultStream serves live fan-out over a websocket: each client_query
// runs one prompt cycle, provider results stream back as they settle, and a
// cycle_summary frame closes the cycle with results in requested order.
func (s *Server) handleResultStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.WSClients.Inc()
		defer s.metrics.WSClients.Dec()
	}

	conn.SetReadLimit(wsReadLimit)
	ctx := r.Context()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeFrame(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}

		query, ok := parsed.(protocol.ClientQuery)
		if !ok {
			continue
		}

		resp, err := s.engine.HandlePromptStream(ctx, orchestrator.PromptRequest{
			SessionID:   query.SessionID,
			ProviderIDs: query.ProviderIDs,
			Prompt:      query.Prompt,
			APIKeys:     s.mergeKeys(query.APIKeys),
			Simulate:    query.Simulate,
		}, func(res orchestrator.Result) {
			s.writeFrame(conn, protocol.ProviderResult{
				Type:         protocol.TypeProviderResult,
				ProviderID:   res.ProviderID,
				ProviderName: res.ProviderName,
				Status:       res.Status,
				Text:         res.Text,
			})
		})
		if err != nil {
			s.writeFrame(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   cycleErrorCode(err),
				Detail: err.Error(),
			})
			continue
		}

		summary := protocol.CycleSummary{
			Type:      protocol.TypeCycleSummary,
			SessionID: resp.SessionID,
			Results:   make([]protocol.ProviderResult, 0, len(resp.Results)),
		}
		for _, res := range resp.Results {
			summary.Results = append(summary.Results, protocol.ProviderResult{
				Type:         protocol.TypeProviderResult,
				SessionID:    resp.SessionID,
				ProviderID:   res.ProviderID,
				ProviderName: res.ProviderName,
				Status:       res.Status,
				Text:         res.Text,
			})
		}
		s.writeFrame(conn, summary)
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Debug("ws write failed", "error", err)
	}
}

func cycleErrorCode(err error) string {
	switch {
	case orchestrator.IsValidation(err):
		return "invalid_request"
	case errors.Is(err, memory.ErrSessionNotFound):
		return "session_not_found"
	default:
		return "cycle_failed"
	}
}
