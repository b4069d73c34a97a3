package app

import (
	"testing"
	"time"
)

func TestArchiveRecordAndTranscript(t *testing.T) {
	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	defer archive.Close()

	base := time.Now()
	msgs := []Message{
		{ID: "m1", Role: RoleUser, Kind: KindText, Content: "Bonjour", CreatedAt: base},
		{ID: "m2", Role: RoleAssistant, Kind: KindText, Content: "Salut!", CreatedAt: base.Add(time.Second)},
		{ID: "m3", Role: RoleAssistant, Kind: KindConsent, CreatedAt: base.Add(2 * time.Second),
			Consent: &ConsentRequest{ConsentID: "c1", Status: ConsentPending, ExpiresIn: 300}},
	}
	for _, m := range msgs {
		if err := archive.Record("s1", m); err != nil {
			t.Fatalf("record %s: %v", m.ID, err)
		}
	}

	got, err := archive.Transcript("s1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i].ID != want {
			t.Fatalf("entry %d = %s, want %s", i, got[i].ID, want)
		}
	}
	if got[2].Consent == nil || got[2].Consent.ConsentID != "c1" {
		t.Fatalf("consent metadata lost: %+v", got[2])
	}
}

func TestArchiveIgnoresDuplicateMessageIDs(t *testing.T) {
	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	defer archive.Close()

	m := NewTextMessage(RoleAssistant, "once")
	if err := archive.Record("s1", m); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := archive.Record("s1", m); err != nil {
		t.Fatalf("duplicate record: %v", err)
	}

	got, err := archive.Transcript("s1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
}

func TestArchiveSessionsOrderedByRecency(t *testing.T) {
	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	defer archive.Close()

	base := time.Now()
	_ = archive.Record("old", Message{ID: "a", Role: RoleUser, Kind: KindText, Content: "x", CreatedAt: base})
	_ = archive.Record("new", Message{ID: "b", Role: RoleUser, Kind: KindText, Content: "y", CreatedAt: base.Add(time.Minute)})

	ids, err := archive.Sessions(10)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "new" || ids[1] != "old" {
		t.Fatalf("sessions = %v", ids)
	}
}
