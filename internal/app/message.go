package app

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind discriminates the two shapes a chat entry can take: a plain text turn
// or a consent request injected after an assistant answer. Switching on Kind
// is how callers get exhaustive handling; Consent is non-nil iff Kind is
// KindConsent.
type Kind string

const (
	KindText    Kind = "text"
	KindConsent Kind = "consent"
)

type ConsentStatus string

const (
	ConsentPending   ConsentStatus = "pending"
	ConsentExecuting ConsentStatus = "executing"
	ConsentSuccess   ConsentStatus = "success"
	ConsentError     ConsentStatus = "error"
	ConsentExpired   ConsentStatus = "expired"
)

// Terminal reports whether the status admits no further transition on the
// client. Executing is not terminal: it resolves to success or error when the
// backend answers.
func (s ConsentStatus) Terminal() bool {
	return s == ConsentSuccess || s == ConsentError || s == ConsentExpired
}

// Operation describes the sensitive action a consent grants. Details is an
// opaque payload owned by the backend; the client only displays it.
type Operation struct {
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// ConsentRequest is the client-side mirror of a backend-issued consent.
// Remaining starts at ExpiresIn and counts down once per second while the
// status is pending; the backend keeps its own (possibly stricter) deadline.
type ConsentRequest struct {
	ConsentID      string        `json:"consent_id"`
	Operation      Operation     `json:"operation"`
	ExpiresIn      int           `json:"expires_in"`
	Remaining      int           `json:"remaining"`
	Status         ConsentStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	AuditAvailable bool          `json:"audit_available,omitempty"`
}

// Message is one entry in the conversation log.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Kind      Kind            `json:"kind"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	Consent   *ConsentRequest `json:"consent,omitempty"`
}

func NewTextMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Kind:      KindText,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewConsentMessage builds the log entry injected when a chat response
// carries a pending consent. Content stays empty until the card resolves.
func NewConsentMessage(consentID string, op Operation, expiresIn int) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Kind:      KindConsent,
		CreatedAt: time.Now(),
		Consent: &ConsentRequest{
			ConsentID: consentID,
			Operation: op,
			ExpiresIn: expiresIn,
			Remaining: expiresIn,
			Status:    ConsentPending,
		},
	}
}

// Activity is one line of the side-channel activity feed. Not persisted.
type Activity struct {
	TS      time.Time `json:"ts"`
	Icon    string    `json:"icon"`
	Message string    `json:"message"`
}

// AuditReport is the structured record of what a consented operation did,
// fetched after execution.
type AuditReport struct {
	Timestamp string          `json:"timestamp"`
	Consent   AuditConsent    `json:"consent"`
	Result    json.RawMessage `json:"result"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

type AuditConsent struct {
	ConsentID  string    `json:"consentId"`
	Operation  Operation `json:"operation"`
	CreatedAt  time.Time `json:"createdAt"`
	UsedAt     time.Time `json:"usedAt"`
	DurationMS int64     `json:"duration"`
}
