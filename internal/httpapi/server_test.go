package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/mfiorillo/choir/internal/config"
	"github.com/mfiorillo/choir/internal/memory"
	"github.com/mfiorillo/choir/internal/orchestrator"
	"github.com/mfiorillo/choir/internal/protocol"
	"github.com/mfiorillo/choir/internal/providers"
)

func newTestServer(t *testing.T) (*Server, *memory.InMemoryStore) {
	t.Helper()
	store := memory.NewInMemoryStore()
	registry := providers.DefaultRegistry()
	engine := orchestrator.New(registry, store, providers.NewCaller(time.Second, nil), nil, nil, time.Second)
	srv := New(config.Config{}, store, registry, engine, nil, nil)
	return srv, store
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	defer res.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAvailableProviders(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/llm/available")
	if err != nil {
		t.Fatalf("GET /v1/llm/available error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	body := decodeBody(t, res)
	list, ok := body["providers"].([]any)
	if !ok || len(list) != 3 {
		t.Fatalf("providers = %v, want 3 entries", body["providers"])
	}
}

func TestSimulateCycleEndToEnd(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res := postJSON(t, ts.URL+"/v1/llm/simulate", map[string]any{
		"provider_ids": []string{"zai", "mistral"},
		"prompt":       "my name is Alice",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("simulate status = %d, want 200", res.StatusCode)
	}
	body := decodeBody(t, res)

	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id: %+v", body)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v, want 2", body["results"])
	}
	first := results[0].(map[string]any)
	if first["id"] != "zai" || first["status"] != "completed" {
		t.Fatalf("first result = %+v, want completed zai", first)
	}

	factsByKey, err := store.GetFacts(context.Background(), sessionID, "mistral")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if factsByKey["user_name"] != "Alice" {
		t.Fatalf("persisted user_name = %q, want Alice", factsByKey["user_name"])
	}
}

func TestQueryValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"empty prompt", map[string]any{"provider_ids": []string{"zai"}, "prompt": ""}},
		{"no providers", map[string]any{"prompt": "hello"}},
		{"unknown provider", map[string]any{"provider_ids": []string{"ghost"}, "prompt": "hello"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := postJSON(t, ts.URL+"/v1/llm/query", tc.payload)
			defer res.Body.Close()
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", res.StatusCode)
			}
		})
	}
}

func TestQueryUnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res := postJSON(t, ts.URL+"/v1/llm/simulate", map[string]any{
		"session_id":   "missing",
		"provider_ids": []string{"zai"},
		"prompt":       "hello",
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestConversationLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res := postJSON(t, ts.URL+"/v1/conversations", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", res.StatusCode)
	}
	created := decodeBody(t, res)
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id: %+v", created)
	}

	res = postJSON(t, ts.URL+"/v1/llm/simulate", map[string]any{
		"session_id":   sessionID,
		"provider_ids": []string{"zai", "gemini"},
		"prompt":       "I like black coffee. Anything else?",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("simulate status = %d, want 200", res.StatusCode)
	}
	_ = decodeBody(t, res)

	res, err := http.Get(ts.URL + "/v1/conversations")
	if err != nil {
		t.Fatalf("GET /v1/conversations error = %v", err)
	}
	listBody := decodeBody(t, res)
	conversations, ok := listBody["conversations"].([]any)
	if !ok || len(conversations) != 1 {
		t.Fatalf("conversations = %v, want 1", listBody["conversations"])
	}
	summary := conversations[0].(map[string]any)
	if summary["message_count"].(float64) != 4 {
		t.Fatalf("message_count = %v, want 4 (user+assistant per provider)", summary["message_count"])
	}

	res, err = http.Get(ts.URL + "/v1/conversations/" + sessionID + "/history")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	history := decodeBody(t, res)
	byProvider, ok := history["messages_by_provider"].(map[string]any)
	if !ok || len(byProvider) != 2 {
		t.Fatalf("messages_by_provider = %v, want 2 providers", history["messages_by_provider"])
	}
	zai := byProvider["zai"].(map[string]any)
	if zai["provider_name"] != "Z.AI GLM-4.5-Flash" {
		t.Fatalf("provider_name = %v, want display name", zai["provider_name"])
	}
	memoryByProvider := history["memory_by_provider"].(map[string]any)
	zaiMemory := memoryByProvider["zai"].(map[string]any)
	if got, _ := zaiMemory["preferences"].(string); !strings.Contains(got, "black coffee") {
		t.Fatalf("zai memory preferences = %q, want coffee preference", got)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/conversations/"+sessionID, nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", delRes.StatusCode)
	}

	res, err = http.Get(ts.URL + "/v1/conversations/" + sessionID + "/history")
	if err != nil {
		t.Fatalf("GET history after delete error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("history after delete status = %d, want 404", res.StatusCode)
	}
}

func TestManualMemoryUpdate(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sess, err := store.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	res := postJSON(t, ts.URL+"/v1/conversations/"+sess.ID+"/memory/gemini", map[string]any{
		"memory": map[string]string{"user_name": "Dana"},
	})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("memory update status = %d, want 200", res.StatusCode)
	}

	factsByKey, err := store.GetFacts(context.Background(), sess.ID, "gemini")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if factsByKey["user_name"] != "Dana" {
		t.Fatalf("user_name = %q, want Dana", factsByKey["user_name"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
	}
}

func TestResultStreamFrameOrdering(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/llm/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	query := protocol.ClientQuery{
		Type:        protocol.TypeClientQuery,
		ProviderIDs: []string{"zai", "gemini"},
		Prompt:      "my name is Alice",
		Simulate:    true,
	}
	if err := conn.WriteJSON(query); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	// Per-provider results stream first, in completion order.
	streamed := make(map[string]bool)
	for i := 0; i < 2; i++ {
		var frame protocol.ProviderResult
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("frame %d read error = %v", i, err)
		}
		if frame.Type != protocol.TypeProviderResult {
			t.Fatalf("frame %d type = %q, want %q", i, frame.Type, protocol.TypeProviderResult)
		}
		if frame.Status != "completed" {
			t.Fatalf("frame %d status = %q, want completed", i, frame.Status)
		}
		streamed[frame.ProviderID] = true
	}
	if !streamed["zai"] || !streamed["gemini"] {
		t.Fatalf("streamed providers = %v, want zai and gemini", streamed)
	}

	// The closing summary carries results in requested provider order.
	var summary protocol.CycleSummary
	if err := conn.ReadJSON(&summary); err != nil {
		t.Fatalf("summary read error = %v", err)
	}
	if summary.Type != protocol.TypeCycleSummary {
		t.Fatalf("summary type = %q, want %q", summary.Type, protocol.TypeCycleSummary)
	}
	if summary.SessionID == "" {
		t.Fatalf("summary missing session_id")
	}
	if len(summary.Results) != 2 || summary.Results[0].ProviderID != "zai" || summary.Results[1].ProviderID != "gemini" {
		t.Fatalf("summary results out of order: %+v", summary.Results)
	}
}

func TestResultStreamRejectsInvalidQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/llm/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	query := protocol.ClientQuery{
		Type:        protocol.TypeClientQuery,
		ProviderIDs: []string{"zai"},
		Prompt:      "",
		Simulate:    true,
	}
	if err := conn.WriteJSON(query); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var event protocol.ErrorEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("error event read error = %v", err)
	}
	if event.Type != protocol.TypeErrorEvent || event.Code != "invalid_client_message" {
		t.Fatalf("event = %+v, want invalid_client_message error_event", event)
	}
}

func TestPreviewCutsAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("a", 99) + "éllo and more trailing text"
	got := preview(long)
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("a", 99) + "é..."; got != want {
		t.Fatalf("preview = %q, want %q", got, want)
	}

	short := "héllo"
	if got := preview(short); got != short {
		t.Fatalf("preview = %q, want unchanged %q", got, short)
	}
}
