package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPClient talks to any OpenAI-compatible chat-completions endpoint
// (cloud APIs and local servers such as Ollama both speak this dialect).
// It is safe for concurrent use.
type HTTPClient struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient returns a client with no transport-level timeout; per-call
// deadlines come from CallRequest.Deadline.
func NewHTTPClient(logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// chatRequest is the wire body for a generation call. Streaming is always
// disabled: the orchestrator needs the complete text to extract from.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate issues one chat-completions call bound to req.Deadline. The
// cancellation timer is released on every path; a deadline expiry comes back
// as a timeout-tagged *CallError, any other transport failure as an
// untagged one with elapsed time attached.
func (c *HTTPClient) Generate(ctx context.Context, req CallRequest) (*CallResult, error) {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, req.Deadline)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		Stream:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, strings.TrimRight(req.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.callError("generate", req.Deadline, start, callCtx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.callError("generate", req.Deadline, start, callCtx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &CallError{
			Op:      "generate",
			Elapsed: time.Since(start),
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &CallError{Op: "generate", Elapsed: time.Since(start), Err: fmt.Errorf("parse response envelope: %w", err)}
	}
	if parsed.Error != nil {
		return nil, &CallError{Op: "generate", Elapsed: time.Since(start), Err: fmt.Errorf("backend error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &CallError{Op: "generate", Elapsed: time.Since(start), Err: fmt.Errorf("no completion returned")}
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}

	elapsed := time.Since(start)
	c.logger.Debug("generation call completed",
		zap.String("model", model),
		zap.Duration("elapsed", elapsed))

	return &CallResult{
		Text:    strings.TrimSpace(parsed.Choices[0].Message.Content),
		Elapsed: elapsed,
		Model:   model,
	}, nil
}

// callError tags the failure: deadline expiry of the call context means the
// backend never responded in time, everything else keeps its original cause.
func (c *HTTPClient) callError(op string, deadline time.Duration, start time.Time, callCtx context.Context, err error) *CallError {
	ce := &CallError{
		Op:      op,
		Elapsed: time.Since(start),
		Err:     err,
	}
	if callCtx.Err() == context.DeadlineExceeded {
		ce.Timeout = true
		ce.Deadline = deadline
	}
	return ce
}

// healthResponse is the readiness body the probe expects.
type healthResponse struct {
	Status string `json:"status"`
}

// CheckHealth probes baseURL's health path. Any non-2xx status, transport
// error, timeout, or not-ready body counts as unhealthy. The probe deadline
// is the caller's context deadline, independent of generation deadlines.
func (c *HTTPClient) CheckHealth(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health probe: status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("health probe: decode body: %w", err)
	}
	switch strings.ToLower(health.Status) {
	case "ok", "ready", "healthy":
		return nil
	default:
		return fmt.Errorf("health probe: backend reports %q", health.Status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
