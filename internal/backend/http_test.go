package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// TestMain verifies the timer-cleanup invariant for the whole package: no
// test may leave a pending cancellation timer or probe goroutine behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The shared http.Transport keeps idle connections alive between tests.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

func completionsHandler(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test-model","choices":[{"message":{"role":"assistant","content":` + jsonString(content) + `},"finish_reason":"stop"}]}`))
	}
}

func jsonString(s string) string {
	out := `"`
	for _, r := range s {
		switch r {
		case '"':
			out += `\"`
		case '\\':
			out += `\\`
		case '\n':
			out += `\n`
		default:
			out += string(r)
		}
	}
	return out + `"`
}

func testRequest(baseURL string, deadline time.Duration) CallRequest {
	return CallRequest{
		BaseURL:     baseURL,
		Model:       "test-model",
		Messages:    []Message{{Role: "user", Content: "improve this"}},
		Deadline:    deadline,
		Temperature: 0.2,
	}
}

func TestGenerateSuccess(t *testing.T) {
	srv := httptest.NewServer(completionsHandler("  {\"ok\": true}  "))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop())
	res, err := c.Generate(context.Background(), testRequest(srv.URL, 5*time.Second))
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.Text != `{"ok": true}` {
		t.Errorf("Text = %q, want trimmed body", res.Text)
	}
	if res.Model != "test-model" {
		t.Errorf("Model = %q, want resolved model name", res.Model)
	}
	if res.Elapsed <= 0 {
		t.Error("Elapsed not recorded")
	}
}

func TestGenerateTimeoutTagged(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPClient(zap.NewNop())
	deadline := 50 * time.Millisecond
	_, err := c.Generate(context.Background(), testRequest(srv.URL, deadline))
	if err == nil {
		t.Fatal("Generate() succeeded, want timeout")
	}
	if !IsTimeout(err) {
		t.Fatalf("IsTimeout(%v) = false, want timeout-tagged error", err)
	}

	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("error is %T, want *CallError", err)
	}
	if ce.Op != "generate" {
		t.Errorf("Op = %q, want %q", ce.Op, "generate")
	}
	if ce.Deadline != deadline {
		t.Errorf("Deadline = %v, want %v", ce.Deadline, deadline)
	}
}

func TestGenerateTransportErrorNotTimeout(t *testing.T) {
	srv := httptest.NewServer(completionsHandler("x"))
	srv.Close() // connection refused from here on

	c := NewHTTPClient(zap.NewNop())
	_, err := c.Generate(context.Background(), testRequest(srv.URL, 5*time.Second))
	if err == nil {
		t.Fatal("Generate() succeeded against closed server")
	}
	if IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = true, want plain transport failure", err)
	}

	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("error is %T, want *CallError", err)
	}
	if ce.Elapsed < 0 {
		t.Error("Elapsed not attached")
	}
}

func TestGenerateNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop())
	_, err := c.Generate(context.Background(), testRequest(srv.URL, 5*time.Second))
	if err == nil {
		t.Fatal("Generate() succeeded, want status error")
	}
	if IsTimeout(err) {
		t.Error("status error tagged as timeout")
	}
}

func TestGenerateErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop())
	_, err := c.Generate(context.Background(), testRequest(srv.URL, 5*time.Second))
	if err == nil {
		t.Fatal("Generate() succeeded, want envelope error")
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop())
	_, err := c.Generate(context.Background(), testRequest(srv.URL, 5*time.Second))
	if err == nil {
		t.Fatal("Generate() succeeded, want no-completion error")
	}
}

// Repeated calls must not accumulate pending timers; goleak in TestMain
// would flag a leaked context timer after this loop.
func TestGenerateNoTimerLeakAcrossCalls(t *testing.T) {
	srv := httptest.NewServer(completionsHandler("ok"))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop())
	for i := 0; i < 20; i++ {
		if _, err := c.Generate(context.Background(), testRequest(srv.URL, time.Minute)); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	c.httpClient.CloseIdleConnections()
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "ready",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"ok"}`))
			},
		},
		{
			name: "explicitly_not_ready",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"loading"}`))
			},
			wantErr: true,
		},
		{
			name: "non_2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusInternalServerError)
			},
			wantErr: true,
		},
		{
			name: "garbage_body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>not json</html>"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewHTTPClient(zap.NewNop())
			err := c.CheckHealth(context.Background(), srv.URL)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckHealth() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckHealthHitsHealthPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop())
	if err := c.CheckHealth(context.Background(), srv.URL+"/"); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if gotPath != "/health" {
		t.Errorf("probe path = %q, want /health", gotPath)
	}
}
