package stub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"maxctl/internal/app"
)

// The stub is exercised through the real client so the wire shapes stay in
// lockstep with what the controller consumes.

func newStubClient(t *testing.T) *app.Client {
	t.Helper()
	srv := httptest.NewServer(New().Router())
	t.Cleanup(srv.Close)
	return app.NewClient(srv.URL, "")
}

func TestChatAssignsSessionAndAnswers(t *testing.T) {
	client := newStubClient(t)

	resp, err := client.Chat(context.Background(), app.ChatRequest{Message: "Bonjour", Mode: "auto"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatalf("expected a session id")
	}
	if !strings.Contains(resp.Text(), "Bonjour") {
		t.Fatalf("answer = %q", resp.Text())
	}
	if resp.PendingConsent != nil {
		t.Fatalf("plain greeting should not request consent")
	}
}

func TestConsentScenarioEndToEnd(t *testing.T) {
	client := newStubClient(t)

	// A layout-change request triggers a pending consent.
	resp, err := client.Chat(context.Background(), app.ChatRequest{
		Message: "Modifie la disposition du tableau de bord",
		Mode:    "assisté",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	pc := resp.PendingConsent
	if pc == nil {
		t.Fatalf("expected pendingConsent in response")
	}
	if pc.ExpiresIn != consentTTL || pc.Operation.Description == "" {
		t.Fatalf("pendingConsent = %+v", pc)
	}

	// Approve.
	exec, err := client.ExecuteConsent(context.Background(), pc.ConsentID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !exec.Success || exec.Audit == nil || exec.Audit.ConsentID != pc.ConsentID {
		t.Fatalf("execute response = %+v", exec)
	}

	// One-shot: a second execute is refused.
	if _, err := client.ExecuteConsent(context.Background(), pc.ConsentID); err == nil {
		t.Fatalf("expected second execute to fail")
	}

	// Audit report correlates with the original consent.
	report, err := client.AuditReport(context.Background(), pc.ConsentID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.Consent.ConsentID != pc.ConsentID {
		t.Fatalf("report consent id = %q, want %q", report.Consent.ConsentID, pc.ConsentID)
	}
	if report.Consent.UsedAt.Before(report.Consent.CreatedAt) {
		t.Fatalf("usedAt precedes createdAt: %+v", report.Consent)
	}
}

func TestExecuteUnknownConsent(t *testing.T) {
	client := newStubClient(t)
	if _, err := client.ExecuteConsent(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected error for unknown consent")
	}
}

func TestAuditBeforeExecutionRefused(t *testing.T) {
	client := newStubClient(t)
	pc, err := client.RequestConsent(context.Background(), "layout_update", "Test", nil)
	if err != nil {
		t.Fatalf("request consent: %v", err)
	}
	if _, err := client.AuditReport(context.Background(), pc.ConsentID); err == nil {
		t.Fatalf("expected audit of unexecuted consent to fail")
	}
}

func TestStreamDeliversWholeAnswer(t *testing.T) {
	client := newStubClient(t)

	var b strings.Builder
	err := client.ChatStream(context.Background(), "s1", "Bonjour", func(content string) {
		b.WriteString(content)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !strings.Contains(b.String(), "Bonjour") {
		t.Fatalf("streamed answer = %q", b.String())
	}
}

func TestActivitiesAccumulatePerSession(t *testing.T) {
	client := newStubClient(t)

	resp, err := client.Chat(context.Background(), app.ChatRequest{Message: "salut", Mode: "auto"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	acts, err := client.Activities(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(acts) == 0 {
		t.Fatalf("expected at least one activity line")
	}
	other, err := client.Activities(context.Background(), "other-session")
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("activity feeds must be per-session, got %+v", other)
	}
}

func TestUploadDetectsFileType(t *testing.T) {
	client := newStubClient(t)

	resp, err := client.Upload(context.Background(), "", app.ModeAuto, "leads.csv", strings.NewReader("nom,email\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.File.Type != "csv" {
		t.Fatalf("file type = %q, want csv", resp.File.Type)
	}
	if resp.SessionID == "" {
		t.Fatalf("upload should establish a session")
	}
}
