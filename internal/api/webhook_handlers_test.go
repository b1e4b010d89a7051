package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/presentagent/present-agent/internal/messaging"
	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/store"
	"github.com/presentagent/present-agent/internal/twiliowhatsapp"
)

func TestVerifyInstagramWebhook_Success(t *testing.T) {
	srv, _ := newTestServer(&stubProcessor{}, NewMockInstagramSender())

	req := httptest.NewRequest(http.MethodGet, "/webhook/instagram?hub.mode=subscribe&hub.challenge=12345&hub.verify_token=secret-token", nil)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "webhook verification")
	if rr.Body.String() != "12345" {
		t.Errorf("expected challenge echo, got %q", rr.Body.String())
	}
}

func TestVerifyInstagramWebhook_Rejected(t *testing.T) {
	srv, _ := newTestServer(&stubProcessor{}, NewMockInstagramSender())

	tests := []struct {
		name  string
		query string
	}{
		{name: "wrong token", query: "hub.mode=subscribe&hub.challenge=12345&hub.verify_token=wrong"},
		{name: "wrong mode", query: "hub.mode=unsubscribe&hub.challenge=12345&hub.verify_token=secret-token"},
		{name: "missing params", query: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook/instagram?"+tt.query, nil)
			rr := httptest.NewRecorder()
			srv.routes().ServeHTTP(rr, req)

			assertHTTPStatus(t, http.StatusForbidden, rr.Code, tt.name)
			assertJSONStatus(t, rr, "error")
		})
	}
}

func TestInstagramWebhook_TextMessage(t *testing.T) {
	proc := &stubProcessor{}
	instagram := NewMockInstagramSender()
	srv, _ := newTestServer(proc, instagram)

	body := `{"entry":[{"messaging":[{"sender":{"id":"ig900"},"message":{"text":"gift for my sister"}}]}]}`
	req := createJSONRequest(t, http.MethodPost, "/webhook/instagram", body)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "instagram webhook")
	if len(proc.received) != 1 || proc.received[0] != "gift for my sister" {
		t.Fatalf("expected message to reach processor, got %v", proc.received)
	}
	if proc.fromIDs[0] != "ig900" {
		t.Errorf("expected sender id ig900, got %q", proc.fromIDs[0])
	}
	if proc.platform != models.PlatformInstagram {
		t.Errorf("expected instagram platform, got %q", proc.platform)
	}
	if len(instagram.SentMessages) != 1 || instagram.SentMessages[0].Text != "reply to gift for my sister" {
		t.Fatalf("expected reply sent back, got %v", instagram.SentMessages)
	}
}

func TestInstagramWebhook_NonTextMessage(t *testing.T) {
	proc := &stubProcessor{}
	instagram := NewMockInstagramSender()
	srv, _ := newTestServer(proc, instagram)

	body := `{"entry":[{"messaging":[{"sender":{"id":"ig900"},"message":{"attachments":[{"type":"image"}]}}]}]}`
	req := createJSONRequest(t, http.MethodPost, "/webhook/instagram", body)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "non-text event")
	if len(proc.received) != 0 {
		t.Errorf("expected processor not invoked, got %v", proc.received)
	}
	if len(instagram.SentMessages) != 1 || instagram.SentMessages[0].Text != nonTextInboundReply {
		t.Fatalf("expected non-text nudge, got %v", instagram.SentMessages)
	}
}

func TestInstagramWebhook_InvalidEventSkipped(t *testing.T) {
	proc := &stubProcessor{}
	instagram := NewMockInstagramSender()
	srv, _ := newTestServer(proc, instagram)

	// First event has no sender; second is valid and must still be processed.
	body := `{"entry":[{"messaging":[` +
		`{"message":{"text":"orphan"}},` +
		`{"sender":{"id":"ig901"},"message":{"text":"still here"}}]}]}`
	req := createJSONRequest(t, http.MethodPost, "/webhook/instagram", body)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "batch with invalid event")
	if len(proc.received) != 1 || proc.received[0] != "still here" {
		t.Fatalf("expected second event processed, got %v", proc.received)
	}
}

func TestInstagramWebhook_PanicContained(t *testing.T) {
	proc := &stubProcessor{panicOn: "boom"}
	instagram := NewMockInstagramSender()
	srv, _ := newTestServer(proc, instagram)

	body := `{"entry":[{"messaging":[` +
		`{"sender":{"id":"ig902"},"message":{"text":"boom"}},` +
		`{"sender":{"id":"ig903"},"message":{"text":"after"}}]}]}`
	req := createJSONRequest(t, http.MethodPost, "/webhook/instagram", body)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "batch with panicking event")
	if len(proc.received) != 1 || proc.received[0] != "after" {
		t.Fatalf("expected event after panic processed, got %v", proc.received)
	}
	// The panicking sender got the technical-difficulty reply, the second a real one.
	if len(instagram.SentMessages) != 2 {
		t.Fatalf("expected 2 sends, got %v", instagram.SentMessages)
	}
	if instagram.SentMessages[0].RecipientID != "ig902" || !strings.Contains(instagram.SentMessages[0].Text, "technical difficulties") {
		t.Errorf("expected technical-difficulty reply, got %+v", instagram.SentMessages[0])
	}
}

func TestInstagramWebhook_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer(&stubProcessor{}, NewMockInstagramSender())

	req := createJSONRequest(t, http.MethodPost, "/webhook/instagram", "{not json")
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid JSON")
	assertJSONStatus(t, rr, "error")
}

func newTwilioFormRequest(t *testing.T, from, body string) *http.Request {
	t.Helper()
	form := url.Values{}
	if from != "" {
		form.Set("From", from)
	}
	if body != "" {
		form.Set("Body", body)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTwilioWebhook_InjectsResponse(t *testing.T) {
	twilioSvc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	srv := NewServer(&stubProcessor{}, store.NewInMemoryStore(), nil, twilioSvc)

	req := newTwilioFormRequest(t, "whatsapp:+15551234567", "hello bot")
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "twilio webhook")
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected text/xml response, got %q", ct)
	}

	select {
	case got := <-twilioSvc.Responses():
		if got.From != "+15551234567" || got.Body != "hello bot" {
			t.Errorf("unexpected injected response: %+v", got)
		}
	default:
		t.Fatal("expected response injected into Twilio service")
	}
}

func TestTwilioWebhook_MissingFields(t *testing.T) {
	twilioSvc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	srv := NewServer(&stubProcessor{}, store.NewInMemoryStore(), nil, twilioSvc)

	req := newTwilioFormRequest(t, "", "hello bot")
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing From")
	assertJSONStatus(t, rr, "error")
}

func TestTwilioWebhook_NotConfigured(t *testing.T) {
	srv, _ := newTestServer(&stubProcessor{}, NewMockInstagramSender())

	req := newTwilioFormRequest(t, "whatsapp:+15551234567", "hello bot")
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusServiceUnavailable, rr.Code, "twilio not configured")
	assertJSONStatus(t, rr, "error")
}
