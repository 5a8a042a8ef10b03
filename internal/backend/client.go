// Package backend dispatches generation calls to LLM backends and decides,
// per request, which backend to target. It owns the deadline handling, the
// health probe, and the circuit breaker that shields a chronically failing
// primary.
package backend

import (
	"context"
	"time"
)

// Message is one turn in the transcript sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallRequest describes a single outbound generation call. It is constructed
// fresh for each attempt and never mutated after dispatch.
type CallRequest struct {
	BaseURL     string
	Model       string
	APIKey      string
	Messages    []Message
	Deadline    time.Duration
	Temperature float64
}

// CallResult is the raw outcome of a successful generation call. It is owned
// exclusively by the caller that issued the call.
type CallResult struct {
	Text    string
	Elapsed time.Duration
	Model   string
}

// Client issues one generation call. The production implementation is
// HTTPClient; tests substitute deterministic stubs.
type Client interface {
	Generate(ctx context.Context, req CallRequest) (*CallResult, error)
}

// HealthChecker probes a backend for readiness ahead of a generation call.
type HealthChecker interface {
	CheckHealth(ctx context.Context, baseURL string) error
}

// Endpoint is the static description of one backend target.
type Endpoint struct {
	Name          string
	URL           string
	Model         string
	APIKey        string
	Deadline      time.Duration
	HealthTimeout time.Duration
}

// Backend pairs an endpoint with the client that reaches it.
type Backend struct {
	Endpoint Endpoint
	Client   Client
}
