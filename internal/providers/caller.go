package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfiorillo/choir/internal/reliability"
)

const (
	maxErrorBodyBytes = 4 << 10
	retryBackoffBase  = 200 * time.Millisecond
	retryBackoffCap   = 2 * time.Second
	// One retry keeps transient upstream hiccups invisible without letting
	// a dead provider hold the fan-out barrier open for long.
	maxAttempts = 2
)

// UpstreamError is a provider-scoped failure. Its message is what the user
// sees as that provider's result text.
type UpstreamError struct {
	ProviderID string
	Message    string
}

func (e *UpstreamError) Error() string { return e.Message }

// Caller is the single component performing provider network I/O. Adapters
// hand it a prepared Request; it returns canonical answer text.
type Caller struct {
	client *http.Client
	logger *slog.Logger
}

func NewCaller(timeout time.Duration, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Complete builds the provider request, issues it and parses the answer.
// Failures come back as *UpstreamError; sibling providers are unaffected.
func (c *Caller) Complete(ctx context.Context, a Adapter, prompt string, prior []Message, apiKey string) (string, error) {
	desc := a.Descriptor()

	req, err := a.BuildRequest(prompt, prior, apiKey)
	if err != nil {
		return "", &UpstreamError{ProviderID: desc.ID, Message: fmt.Sprintf("Request build error: %v", err)}
	}

	status, body, err := c.post(ctx, desc.ID, req)
	if err != nil {
		return "", &UpstreamError{ProviderID: desc.ID, Message: fmt.Sprintf("Connection error: %v", err)}
	}

	if status < 200 || status >= 300 {
		return "", &UpstreamError{ProviderID: desc.ID, Message: a.ParseError(status, body)}
	}

	text, err := a.ParseResponse(body)
	if err != nil {
		return "", &UpstreamError{ProviderID: desc.ID, Message: fmt.Sprintf("Malformed response: %v", err)}
	}
	return text, nil
}

func (c *Caller) post(ctx context.Context, providerID string, req Request) (int, []byte, error) {
	var (
		status  int
		body    []byte
		lastErr error
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt, retryBackoffBase, retryBackoffCap)
			c.logger.Debug("retrying provider call", "provider", providerID, "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		status, body, lastErr = c.once(ctx, req)
		if lastErr != nil {
			return 0, nil, lastErr
		}
		if !reliability.IsRetryableHTTPStatus(status) {
			return status, body, nil
		}
	}
	return status, body, nil
}

func (c *Caller) once(ctx context.Context, req Request) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	var reader io.Reader = res.Body
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		reader = io.LimitReader(res.Body, maxErrorBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return res.StatusCode, body, nil
}
