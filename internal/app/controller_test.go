package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestController(t *testing.T, handler http.Handler) (*Controller, *SessionCache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cache := NewSessionCache(t.TempDir(), nil)
	ctrl := NewController(NewClient(srv.URL, ""), cache, nil, ModeAssist, nil)
	t.Cleanup(ctrl.Gate().Close)
	return ctrl, cache
}

func chatHandler(fn func(req ChatRequest) map[string]any) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(fn(req))
	})
	return mux
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	ctrl, _ := newTestController(t, http.NotFoundHandler())

	for _, text := range []string{"", "   ", "\n\t"} {
		err := ctrl.SendMessage(context.Background(), text, false)
		if !IsValidation(err) {
			t.Fatalf("SendMessage(%q) err = %v, want ValidationError", text, err)
		}
	}
	if ctrl.Log().Len() != 0 {
		t.Fatalf("validation failure must not append messages")
	}
}

func TestSendMessageScenarioBonjour(t *testing.T) {
	ctrl, _ := newTestController(t, chatHandler(func(req ChatRequest) map[string]any {
		return map[string]any{"answer": "Salut!", "sessionId": "s1"}
	}))

	if err := ctrl.SendMessage(context.Background(), "Bonjour", false); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := ctrl.Log().Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "Bonjour" {
		t.Fatalf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "Salut!" {
		t.Fatalf("msgs[1] = %+v", msgs[1])
	}
	if ctrl.SessionID() != "s1" {
		t.Fatalf("sessionID = %q, want s1", ctrl.SessionID())
	}
	if ctrl.Tokens() == 0 {
		t.Fatalf("token counter did not advance")
	}
	if ctrl.Busy() {
		t.Fatalf("busy flag stuck after send")
	}
}

func TestSendMessageCarriesSessionAndMappedMode(t *testing.T) {
	var seen []ChatRequest
	ctrl, _ := newTestController(t, chatHandler(func(req ChatRequest) map[string]any {
		seen = append(seen, req)
		return map[string]any{"answer": "ok", "sessionId": "s1"}
	}))

	if err := ctrl.ChangeMode("conseil"); err != nil {
		t.Fatalf("change mode: %v", err)
	}
	_ = ctrl.SendMessage(context.Background(), "un", false)
	_ = ctrl.SendMessage(context.Background(), "deux", false)

	if len(seen) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(seen))
	}
	if seen[0].SessionID != "" {
		t.Fatalf("first request should carry no session id, got %q", seen[0].SessionID)
	}
	if seen[1].SessionID != "s1" {
		t.Fatalf("second request session = %q, want s1", seen[1].SessionID)
	}
	for _, req := range seen {
		if req.Mode != "conseil" {
			t.Fatalf("mode on the wire = %q, want conseil", req.Mode)
		}
	}
}

func TestChangeModeRejectsUnknownAndKeepsCurrent(t *testing.T) {
	ctrl, _ := newTestController(t, http.NotFoundHandler())

	if err := ctrl.ChangeMode("bogus"); !IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ctrl.Mode() != ModeAssist {
		t.Fatalf("mode changed on invalid input: %q", ctrl.Mode())
	}
	if err := ctrl.ChangeMode("conseil"); err != nil {
		t.Fatalf("valid change failed: %v", err)
	}
	if ctrl.Mode() != ModeConseil {
		t.Fatalf("mode = %q, want conseil", ctrl.Mode())
	}
}

func TestSendMessageInjectsConsentAfterAnswer(t *testing.T) {
	ctrl, _ := newTestController(t, chatHandler(func(req ChatRequest) map[string]any {
		return map[string]any{
			"answer":    "Je peux modifier la disposition.",
			"sessionId": "s1",
			"pendingConsent": map[string]any{
				"consentId": "c1",
				"operation": map[string]any{"description": "X"},
				"expiresIn": 300,
			},
		}
	}))

	if err := ctrl.SendMessage(context.Background(), "change le layout", false); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := ctrl.Log().Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected user+assistant+consent, got %d entries", len(msgs))
	}
	consent := msgs[2]
	if consent.Kind != KindConsent || consent.Consent == nil {
		t.Fatalf("msgs[2] is not a consent entry: %+v", consent)
	}
	if consent.Consent.ConsentID != "c1" ||
		consent.Consent.Status != ConsentPending ||
		consent.Consent.ExpiresIn != 300 ||
		consent.Consent.Operation.Description != "X" {
		t.Fatalf("consent fields = %+v", consent.Consent)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Kind != KindText {
		t.Fatalf("consent entry is not immediately after the answer")
	}
}

func TestSendMessageStreamingAccumulatesOneMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chat/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range []string{`{"content":"Hel"}`, `{"content":"lo"}`, `{"done":true}`} {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	})
	ctrl, _ := newTestController(t, mux)

	if err := ctrl.SendMessage(context.Background(), "salut", true); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := ctrl.Log().Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 messages, got %d", len(msgs))
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "Hello" {
		t.Fatalf("streamed message = %+v", msgs[1])
	}
	if ctrl.Busy() || ctrl.Streaming() {
		t.Fatalf("busy/streaming flags stuck")
	}
}

func TestSendMessageFailureKeepsUserMessageAndClearsBusy(t *testing.T) {
	ctrl, _ := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "panne interne"})
	}))

	err := ctrl.SendMessage(context.Background(), "Bonjour", false)
	if err == nil {
		t.Fatalf("expected delivery error")
	}
	msgs := ctrl.Log().Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("user message must survive a failed send, log = %+v", msgs)
	}
	if ctrl.Busy() {
		t.Fatalf("busy flag stuck after failure")
	}
}

func TestResetConversationClearsEverything(t *testing.T) {
	ctrl, cache := newTestController(t, chatHandler(func(req ChatRequest) map[string]any {
		return map[string]any{"answer": "ok", "sessionId": "s1"}
	}))

	if err := ctrl.SendMessage(context.Background(), "Bonjour", false); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := os.Stat(cache.Path()); err != nil {
		t.Fatalf("cache blob should exist after a send: %v", err)
	}

	ctrl.ResetConversation()

	if ctrl.Log().Len() != 0 {
		t.Fatalf("log not cleared")
	}
	if ctrl.SessionID() != "" {
		t.Fatalf("sessionID not cleared")
	}
	if ctrl.Tokens() != 0 {
		t.Fatalf("token counter not reset")
	}
	if _, err := os.Stat(cache.Path()); !os.IsNotExist(err) {
		t.Fatalf("cache blob should be gone, stat err = %v", err)
	}
}

func TestControllerRestoresCachedSession(t *testing.T) {
	dir := t.TempDir()
	cache := NewSessionCache(dir, nil)
	cache.Save("s7", []Message{
		NewTextMessage(RoleUser, "Bonjour"),
		NewTextMessage(RoleAssistant, "Salut!"),
	})

	ctrl := NewController(NewClient("http://127.0.0.1:0", ""), NewSessionCache(dir, nil), nil, ModeAuto, nil)
	if ctrl.SessionID() != "s7" {
		t.Fatalf("restored sessionID = %q, want s7", ctrl.SessionID())
	}
	if ctrl.Log().Len() != 2 {
		t.Fatalf("restored %d messages, want 2", ctrl.Log().Len())
	}
	if ctrl.Tokens() == 0 {
		t.Fatalf("token counter not rebuilt from restored transcript")
	}
}

func TestUploadFileAdoptsSessionAndMode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		if r.FormValue("mode") != "assisté" {
			t.Errorf("mode field = %q", r.FormValue("mode"))
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file part: %v", err)
		} else if header.Filename != "leads.csv" {
			t.Errorf("filename = %q", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sessionId": "s2",
			"mode":      "conseil",
			"file":      map[string]string{"type": "csv"},
		})
	})
	ctrl, _ := newTestController(t, mux)

	path := filepath.Join(t.TempDir(), "leads.csv")
	if err := os.WriteFile(path, []byte("nom,email\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := ctrl.UploadFile(context.Background(), path); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ctrl.SessionID() != "s2" {
		t.Fatalf("sessionID = %q, want s2", ctrl.SessionID())
	}
	if ctrl.Mode() != ModeConseil {
		t.Fatalf("mode = %q, want backend-confirmed conseil", ctrl.Mode())
	}
	last, ok := ctrl.Log().Last()
	if !ok || last.Role != RoleAssistant || last.Content == "" {
		t.Fatalf("missing ingestion message: %+v", last)
	}
}

func TestUploadFileValidation(t *testing.T) {
	ctrl, _ := newTestController(t, http.NotFoundHandler())

	if err := ctrl.UploadFile(context.Background(), ""); !IsValidation(err) {
		t.Fatalf("empty path err = %v, want ValidationError", err)
	}
	if err := ctrl.UploadFile(context.Background(), filepath.Join(t.TempDir(), "absent.csv")); !IsValidation(err) {
		t.Fatalf("missing file err = %v, want ValidationError", err)
	}
}

func TestControllerMirrorsTranscriptToArchive(t *testing.T) {
	srv := httptest.NewServer(chatHandler(func(req ChatRequest) map[string]any {
		return map[string]any{"answer": "Salut!", "sessionId": "s1"}
	}))
	t.Cleanup(srv.Close)

	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	t.Cleanup(func() { archive.Close() })

	ctrl := NewController(NewClient(srv.URL, ""), NewSessionCache(t.TempDir(), nil), archive, ModeAuto, nil)
	if err := ctrl.SendMessage(context.Background(), "Bonjour", false); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The assistant answer lands under the adopted session id.
	msgs, err := archive.Transcript("s1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "Salut!" {
		t.Fatalf("archived transcript = %+v", msgs)
	}
}
