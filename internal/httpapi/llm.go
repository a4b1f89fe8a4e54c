package httpapi

import (
	"net/http"

	"github.com/mfiorillo/choir/internal/orchestrator"
)

type queryRequest struct {
	SessionID   string            `json:"session_id,omitempty"`
	ProviderIDs []string          `json:"provider_ids"`
	Prompt      string            `json:"prompt"`
	APIKeys     map[string]string `json:"api_keys,omitempty"`
}

func (s *Server) handleAvailableProviders(w http.ResponseWriter, _ *http.Request) {
	descs := s.registry.Descriptors()
	out := make([]map[string]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, map[string]string{"id": d.ID, "name": d.Name})
	}
	respondJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.runCycle(w, r, false)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	s.runCycle(w, r, true)
}

func (s *Server) runCycle(w http.ResponseWriter, r *http.Request, simulate bool) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := s.engine.HandlePrompt(r.Context(), orchestrator.PromptRequest{
		SessionID:   req.SessionID,
		ProviderIDs: req.ProviderIDs,
		Prompt:      req.Prompt,
		APIKeys:     s.mergeKeys(req.APIKeys),
		Simulate:    simulate,
	})
	if err != nil {
		s.respondCycleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// mergeKeys overlays request-supplied credentials on the configured
// defaults, so callers only send keys they want to override.
func (s *Server) mergeKeys(fromRequest map[string]string) map[string]string {
	merged := make(map[string]string, len(s.cfg.DefaultAPIKeys)+len(fromRequest))
	for id, key := range s.cfg.DefaultAPIKeys {
		if key != "" {
			merged[id] = key
		}
	}
	for id, key := range fromRequest {
		if key != "" {
			merged[id] = key
		}
	}
	return merged
}
