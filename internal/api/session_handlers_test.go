package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/store"
)

// seedSession creates a user with one active session and returns their ids.
func seedSession(t *testing.T, st *store.InMemoryStore) (userID, sessionID string) {
	t.Helper()
	user := &models.User{InstagramID: "ig555"}
	if err := st.CreateUser(user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	session := &models.GiftSession{UserID: user.ID, Platform: models.PlatformInstagram, Status: models.SessionStatusActive}
	if err := st.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return user.ID, session.ID
}

func TestCompleteSessionHandler(t *testing.T) {
	srv, st := newTestServer(&stubProcessor{}, NewMockInstagramSender())
	userID, sessionID := seedSession(t, st)

	req := createJSONRequest(t, http.MethodPost, "/sessions/"+sessionID+"/complete", `{"final_choice":"Personalized photo book","satisfaction":5}`)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "complete session")
	assertJSONStatus(t, rr, "ok")

	session, err := st.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != models.SessionStatusCompleted {
		t.Errorf("expected completed status, got %q", session.Status)
	}
	if session.FinalChoice != "Personalized photo book" {
		t.Errorf("final choice not stored, got %q", session.FinalChoice)
	}
	if session.SatisfactionScore == nil || *session.SatisfactionScore != 5 {
		t.Errorf("satisfaction not stored, got %v", session.SatisfactionScore)
	}

	user, err := st.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.SuccessfulRecommendations != 1 {
		t.Errorf("expected successful recommendation counter bump, got %d", user.SuccessfulRecommendations)
	}
}

func TestCompleteSessionHandler_NotFound(t *testing.T) {
	srv, _ := newTestServer(&stubProcessor{}, NewMockInstagramSender())

	req := createJSONRequest(t, http.MethodPost, "/sessions/missing/complete", `{}`)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing session")
	assertJSONStatus(t, rr, "error")
}

func TestCompleteSessionHandler_AlreadyTerminal(t *testing.T) {
	srv, st := newTestServer(&stubProcessor{}, NewMockInstagramSender())
	_, sessionID := seedSession(t, st)

	first := createJSONRequest(t, http.MethodPost, "/sessions/"+sessionID+"/complete", `{}`)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, first)
	assertHTTPStatus(t, http.StatusOK, rr.Code, "first completion")

	second := createJSONRequest(t, http.MethodPost, "/sessions/"+sessionID+"/complete", `{}`)
	rr = httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, second)

	assertHTTPStatus(t, http.StatusConflict, rr.Code, "second completion")
	assertJSONStatus(t, rr, "error")
}

func TestCompleteSessionHandler_InvalidSatisfaction(t *testing.T) {
	srv, st := newTestServer(&stubProcessor{}, NewMockInstagramSender())
	_, sessionID := seedSession(t, st)

	req := createJSONRequest(t, http.MethodPost, "/sessions/"+sessionID+"/complete", `{"satisfaction":6}`)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusBadRequest, rr.Code, "satisfaction out of range")
	assertJSONStatus(t, rr, "error")

	session, err := st.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != models.SessionStatusActive {
		t.Errorf("expected session untouched, got status %q", session.Status)
	}
}

func TestCompleteSessionHandler_InvalidJSON(t *testing.T) {
	srv, st := newTestServer(&stubProcessor{}, NewMockInstagramSender())
	_, sessionID := seedSession(t, st)

	req := createJSONRequest(t, http.MethodPost, "/sessions/"+sessionID+"/complete", "{not json")
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid JSON")
	assertJSONStatus(t, rr, "error")
}

func TestAbandonSessionHandler(t *testing.T) {
	srv, st := newTestServer(&stubProcessor{}, NewMockInstagramSender())
	userID, sessionID := seedSession(t, st)

	req := createJSONRequest(t, http.MethodPost, "/sessions/"+sessionID+"/abandon", `{}`)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusOK, rr.Code, "abandon session")
	assertJSONStatus(t, rr, "ok")

	session, err := st.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != models.SessionStatusAbandoned {
		t.Errorf("expected abandoned status, got %q", session.Status)
	}

	user, err := st.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.SuccessfulRecommendations != 0 {
		t.Errorf("abandon must not bump counters, got %d", user.SuccessfulRecommendations)
	}
}

func TestAbandonSessionHandler_NotFound(t *testing.T) {
	srv, _ := newTestServer(&stubProcessor{}, NewMockInstagramSender())

	req := createJSONRequest(t, http.MethodPost, "/sessions/missing/abandon", `{}`)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing session")
	assertJSONStatus(t, rr, "error")
}
