package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/store"
)

// stubProcessor records processed messages and replies with a fixed prefix.
type stubProcessor struct {
	mu       sync.Mutex
	received []string
	fromIDs  []string
	platform models.Platform
	panicOn  string
}

func (p *stubProcessor) ProcessMessage(ctx context.Context, platformUserID, message string, platform models.Platform) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOn != "" && message == p.panicOn {
		panic("processor blew up")
	}
	p.received = append(p.received, message)
	p.fromIDs = append(p.fromIDs, platformUserID)
	p.platform = platform
	return "reply to " + message
}

// newTestServer creates a Server with an in-memory store and mock senders.
func newTestServer(proc *stubProcessor, instagram *MockInstagramSender) (*Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	srv := NewServer(proc, st, instagram, nil, WithVerifyToken("secret-token"))
	return srv, st
}

// createJSONRequest builds an HTTP request with a JSON body.
func createJSONRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// assertHTTPStatus fails the test if the status code does not match.
func assertHTTPStatus(t *testing.T, want, got int, context string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected status %d, got %d", context, want, got)
	}
}

// assertJSONStatus fails the test if the response envelope status does not match.
func assertJSONStatus(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v (body: %s)", err, rr.Body.String())
	}
	if resp.Status != want {
		t.Errorf("expected response status %q, got %q (body: %s)", want, resp.Status, rr.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(&stubProcessor{}, NewMockInstagramSender())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "health check")
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status healthy, got %q", body["status"])
	}
}

func TestNewServerDefaults(t *testing.T) {
	srv := NewServer(&stubProcessor{}, store.NewInMemoryStore(), nil, nil)
	if srv.addr != DefaultAddr {
		t.Errorf("expected default addr %q, got %q", DefaultAddr, srv.addr)
	}

	srv = NewServer(&stubProcessor{}, store.NewInMemoryStore(), nil, nil, WithAddr(":9090"))
	if srv.addr != ":9090" {
		t.Errorf("expected addr :9090, got %q", srv.addr)
	}
}
