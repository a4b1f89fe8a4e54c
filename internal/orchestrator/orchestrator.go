package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mfiorillo/choir/internal/facts"
	"github.com/mfiorillo/choir/internal/memory"
	"github.com/mfiorillo/choir/internal/observability"
	"github.com/mfiorillo/choir/internal/providers"
)

// stage tracks where a prompt cycle is; used for logs and metrics labels.
type stage string

const (
	stageReceived       stage = "received"
	stageFactsExtracted stage = "facts_extracted"
	stageFannedOut      stage = "fanned_out"
	stageCollected      stage = "collected"
	stagePersisted      stage = "persisted"
	stageResponded      stage = "responded"
	stageFailed         stage = "failed"
)

// Result statuses, one per provider per cycle.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// PromptRequest is one fan-out cycle: the same prompt to every listed
// provider, each with its own context and memory.
type PromptRequest struct {
	SessionID   string
	ProviderIDs []string
	Prompt      string
	// APIKeys maps provider id to credential for live calls.
	APIKeys map[string]string
	// Simulate answers locally instead of calling providers; extraction,
	// merge and persistence run exactly as in a live cycle.
	Simulate bool
}

// Result is one provider's outcome within a cycle.
type Result struct {
	ProviderID   string `json:"id"`
	ProviderName string `json:"name"`
	Status       string `json:"status"`
	Text         string `json:"response"`
}

// Response is the aggregated cycle outcome. Results keep the order of the
// requested provider ids, not completion order.
type Response struct {
	SessionID string   `json:"session_id"`
	Results   []Result `json:"results"`
}

// Engine drives prompt cycles end to end: record the user turn, extract and
// merge facts, fan out provider calls, record answers, persist atomically.
type Engine struct {
	registry *providers.Registry
	store    memory.Store
	caller   *providers.Caller
	metrics  *observability.Metrics
	logger   *slog.Logger
	timeout  time.Duration

	mu    sync.Mutex
	gates map[string]*sessionGate
}

// sessionGate serializes cycles per session id so concurrent prompts cannot
// race on fact upserts.
type sessionGate struct {
	mu   sync.Mutex
	refs int
}

func New(registry *providers.Registry, store memory.Store, caller *providers.Caller, metrics *observability.Metrics, logger *slog.Logger, providerTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if providerTimeout <= 0 {
		providerTimeout = 60 * time.Second
	}
	return &Engine{
		registry: registry,
		store:    store,
		caller:   caller,
		metrics:  metrics,
		logger:   logger,
		timeout:  providerTimeout,
		gates:    make(map[string]*sessionGate),
	}
}

// HandlePrompt runs one full cycle and returns the ordered result list.
func (e *Engine) HandlePrompt(ctx context.Context, req PromptRequest) (Response, error) {
	return e.handle(ctx, req, nil)
}

// HandlePromptStream runs one full cycle, invoking onResult as each
// provider's call settles (completion order). The returned response still
// lists results in requested provider order, and persistence covers every
// result regardless of streaming.
func (e *Engine) HandlePromptStream(ctx context.Context, req PromptRequest, onResult func(Result)) (Response, error) {
	return e.handle(ctx, req, onResult)
}

func (e *Engine) handle(ctx context.Context, req PromptRequest, onResult func(Result)) (Response, error) {
	cycleStart := time.Now()

	// RECEIVED: reject before any side effect.
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Response{}, ErrEmptyPrompt
	}
	if len(req.ProviderIDs) == 0 {
		return Response{}, ErrNoProviders
	}
	adapters := make([]providers.Adapter, len(req.ProviderIDs))
	for i, id := range req.ProviderIDs {
		a, ok := e.registry.Get(id)
		if !ok {
			return Response{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
		}
		adapters[i] = a
	}

	sess, err := e.resolveSession(ctx, req.SessionID)
	if err != nil {
		return Response{}, err
	}
	log := e.logger.With("session_id", sess.ID)
	log.Debug("cycle stage", "stage", stageReceived, "providers", req.ProviderIDs)

	unlock := e.lockSession(sess.ID)
	defer unlock()

	// FACTS_EXTRACTED: one extraction per cycle, merged to every provider
	// in this request's set.
	extracted := facts.Extract(prompt)
	if e.metrics != nil {
		e.metrics.FactsExtracted.Add(float64(len(extracted)))
	}
	log.Debug("cycle stage", "stage", stageFactsExtracted, "keys", len(extracted))

	// Assemble per-provider context from committed state. The current
	// prompt turn is staged below and so never leaks into its own history.
	contexts := make([]ProviderContext, len(req.ProviderIDs))
	for i, id := range req.ProviderIDs {
		prior, err := e.store.GetTurns(ctx, sess.ID, id)
		if err != nil {
			return Response{}, &StoreError{Err: err}
		}
		known, err := e.store.GetFacts(ctx, sess.ID, id)
		if err != nil {
			return Response{}, &StoreError{Err: err}
		}
		for k, v := range extracted {
			known[k] = v
		}
		contexts[i] = assembleContext(known, prior, prompt)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return Response{}, &StoreError{Err: err}
	}
	rollback := func(cause error) (Response, error) {
		_ = tx.Rollback(ctx)
		e.observeCycle(stageFailed, cycleStart)
		log.Error("cycle rolled back", "error", cause)
		return Response{}, &StoreError{Err: cause}
	}

	// One user turn per provider keeps each provider's window scoped to
	// its own stream.
	for _, id := range req.ProviderIDs {
		if err := tx.AppendTurn(ctx, sess.ID, id, memory.RoleUser, prompt); err != nil {
			return rollback(err)
		}
		for key, value := range extracted {
			if err := tx.UpsertFact(ctx, sess.ID, id, key, value); err != nil {
				return rollback(err)
			}
		}
	}

	// FANNED_OUT: independent concurrent calls; one failure or timeout
	// degrades only its own slot.
	log.Debug("cycle stage", "stage", stageFannedOut)
	results := e.fanOut(ctx, req, adapters, contexts, onResult)
	log.Debug("cycle stage", "stage", stageCollected)

	// Error results are recorded too: the conversation log reflects what
	// the user saw.
	for i, id := range req.ProviderIDs {
		if err := tx.AppendTurn(ctx, sess.ID, id, memory.RoleAssistant, results[i].Text); err != nil {
			return rollback(err)
		}
	}
	if err := tx.TouchSession(ctx, sess.ID); err != nil {
		return rollback(err)
	}

	// PERSISTED: all turns and facts of this cycle commit atomically.
	if err := tx.Commit(ctx); err != nil {
		e.observeCycle(stageFailed, cycleStart)
		log.Error("cycle commit failed", "error", err)
		return Response{}, &StoreError{Err: err}
	}
	log.Debug("cycle stage", "stage", stagePersisted)

	e.observeCycle(stageResponded, cycleStart)
	log.Info("cycle responded", "providers", len(results), "elapsed", time.Since(cycleStart))
	return Response{SessionID: sess.ID, Results: results}, nil
}

func (e *Engine) fanOut(ctx context.Context, req PromptRequest, adapters []providers.Adapter, contexts []ProviderContext, onResult func(Result)) []Result {
	results := make([]Result, len(req.ProviderIDs))

	var (
		wg     sync.WaitGroup
		emitMu sync.Mutex
	)
	for i := range req.ProviderIDs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := e.callOne(ctx, req, adapters[i], contexts[i])
			results[i] = r
			if onResult != nil {
				emitMu.Lock()
				onResult(r)
				emitMu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return results
}

func (e *Engine) callOne(ctx context.Context, req PromptRequest, adapter providers.Adapter, pctx ProviderContext) Result {
	desc := adapter.Descriptor()
	result := Result{ProviderID: desc.ID, ProviderName: desc.Name}
	start := time.Now()

	if req.Simulate {
		result.Status = StatusCompleted
		result.Text = Synthesize(desc.ID, desc.Name, pctx)
		e.observeProviderCall(desc.ID, result.Status, start)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := e.caller.Complete(callCtx, adapter, pctx.Prompt, pctx.Messages, req.APIKeys[desc.ID])
	if err != nil {
		result.Status = StatusError
		result.Text = err.Error()
	} else {
		result.Status = StatusCompleted
		result.Text = text
	}
	e.observeProviderCall(desc.ID, result.Status, start)
	return result
}

func (e *Engine) resolveSession(ctx context.Context, sessionID string) (memory.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		sess, err := e.store.CreateSession(ctx)
		if err != nil {
			return memory.Session{}, &StoreError{Err: err}
		}
		if e.metrics != nil {
			e.metrics.SessionsCreated.Inc()
		}
		return sess, nil
	}
	return e.store.GetSession(ctx, sessionID)
}

func (e *Engine) lockSession(sessionID string) func() {
	e.mu.Lock()
	gate, ok := e.gates[sessionID]
	if !ok {
		gate = &sessionGate{}
		e.gates[sessionID] = gate
	}
	gate.refs++
	e.mu.Unlock()

	gate.mu.Lock()
	return func() {
		gate.mu.Unlock()
		e.mu.Lock()
		gate.refs--
		if gate.refs == 0 {
			delete(e.gates, sessionID)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) observeCycle(outcome stage, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.PromptCycles.WithLabelValues(string(outcome)).Inc()
	e.metrics.CycleDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) observeProviderCall(providerID, status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ProviderCalls.WithLabelValues(providerID, status).Inc()
	e.metrics.ProviderCallDuration.WithLabelValues(providerID).Observe(time.Since(start).Seconds())
}
