// Package stub provides an in-process M.A.X. backend implementing the HTTP
// contract the client consumes, with scripted assistant behavior. It backs
// `max stub` for offline demos and the integration tests.
package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const consentTTL = 300 // seconds

// Server holds the stubbed backend state: per-session turn counts and
// activity feeds, plus the consent registry.
type Server struct {
	mu         sync.Mutex
	turns      map[string]int
	activities map[string][]activity
	consents   map[string]*consent
}

type activity struct {
	TS      time.Time `json:"ts"`
	Icon    string    `json:"icon"`
	Message string    `json:"message"`
}

type consent struct {
	ID          string
	Description string
	Details     map[string]any
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
	UsedAt      time.Time
}

func New() *Server {
	return &Server{
		turns:      make(map[string]int),
		activities: make(map[string][]activity),
		consents:   make(map[string]*consent),
	}
}

// Router builds the chi router for the full contract.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/chat", s.handleChat)
	r.Get("/chat/stream", s.handleChatStream)
	r.Post("/chat/upload", s.handleUpload)
	r.Post("/api/consent/request", s.handleConsentRequest)
	r.Post("/api/consent/execute/{consentID}", s.handleConsentExecute)
	r.Get("/api/consent/audit/{consentID}", s.handleConsentAudit)
	r.Get("/api/chat/activities", s.handleActivities)
	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
		Mode      string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	s.turns[sessionID]++
	turn := s.turns[sessionID]
	s.pushActivity(sessionID, "💬", fmt.Sprintf("Message reçu (tour %d, mode %s)", turn, req.Mode))
	s.mu.Unlock()

	resp := map[string]any{
		"answer":    s.answerFor(req.Message, turn),
		"sessionId": sessionID,
	}
	if wantsConsent(req.Message) {
		c := s.issueConsent("layout_update",
			"Modifier la disposition du tableau de bord",
			map[string]any{"target": "leads_board", "requested_by": "assistant"})
		resp["pendingConsent"] = map[string]any{
			"consentId": c.ID,
			"operation": map[string]any{
				"description": c.Description,
				"details":     c.Details,
			},
			"expiresIn": consentTTL,
		}
		s.mu.Lock()
		s.pushActivity(sessionID, "🔐", "Consentement demandé : "+c.Description)
		s.mu.Unlock()
	}
	JSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	sessionID := r.URL.Query().Get("sessionId")
	if strings.TrimSpace(message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	s.mu.Lock()
	s.turns[sessionID]++
	turn := s.turns[sessionID]
	s.pushActivity(sessionID, "📡", "Réponse diffusée en continu")
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(v any) bool {
		data, _ := json.Marshal(v)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	answer := s.answerFor(message, turn)
	for _, word := range strings.Fields(answer) {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		if !writeEvent(map[string]any{"content": word + " "}) {
			return
		}
	}
	writeEvent(map[string]any{"done": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	mode := r.FormValue("mode")
	if mode == "" {
		mode = "auto"
	}

	ftype := "document"
	name := strings.ToLower(header.Filename)
	switch {
	case strings.HasSuffix(name, ".csv"):
		ftype = "csv"
	case strings.HasSuffix(name, ".pdf"):
		ftype = "pdf"
	case strings.HasSuffix(name, ".xlsx"), strings.HasSuffix(name, ".xls"):
		ftype = "tableur"
	}

	s.mu.Lock()
	s.pushActivity(sessionID, "📎", "Fichier reçu : "+header.Filename)
	s.mu.Unlock()

	JSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"mode":      mode,
		"file":      map[string]string{"type": ftype},
		"message":   fmt.Sprintf("J'ai analysé %s (%s). Que voulez-vous en faire ?", header.Filename, ftype),
	})
}

func (s *Server) handleConsentRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string         `json:"type"`
		Description string         `json:"description"`
		Details     map[string]any `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Description == "" {
		Error(w, http.StatusBadRequest, "description is required")
		return
	}
	c := s.issueConsent(req.Type, req.Description, req.Details)
	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"consent": map[string]any{
			"consentId": c.ID,
			"operation": map[string]any{
				"description": c.Description,
				"details":     c.Details,
			},
			"expiresIn": consentTTL,
		},
	})
}

func (s *Server) handleConsentExecute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "consentID")
	s.mu.Lock()
	c, ok := s.consents[id]
	switch {
	case !ok:
		s.mu.Unlock()
		Error(w, http.StatusNotFound, "consentement inconnu")
		return
	case c.Used:
		s.mu.Unlock()
		Error(w, http.StatusConflict, "consentement déjà utilisé")
		return
	case time.Now().After(c.ExpiresAt):
		s.mu.Unlock()
		Error(w, http.StatusGone, "consentement expiré")
		return
	}
	c.Used = true
	c.UsedAt = time.Now()
	s.mu.Unlock()

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  map[string]any{"applied": true, "operation": c.Description},
		"audit": map[string]any{
			"consentId":  c.ID,
			"reportPath": "/api/consent/audit/" + c.ID,
		},
	})
}

func (s *Server) handleConsentAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "consentID")
	s.mu.Lock()
	c, ok := s.consents[id]
	s.mu.Unlock()
	if !ok {
		Error(w, http.StatusNotFound, "consentement inconnu")
		return
	}
	if !c.Used {
		Error(w, http.StatusConflict, "consentement non exécuté")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"report": map[string]any{
			"timestamp": c.UsedAt.Format(time.RFC3339),
			"consent": map[string]any{
				"consentId": c.ID,
				"operation": map[string]any{
					"description": c.Description,
					"details":     c.Details,
				},
				"createdAt": c.CreatedAt,
				"usedAt":    c.UsedAt,
				"duration":  c.UsedAt.Sub(c.CreatedAt).Milliseconds(),
			},
			"result":   map[string]any{"applied": true, "operation": c.Description},
			"metadata": map[string]any{"source": "stub"},
		},
	})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	s.mu.Lock()
	acts := append([]activity(nil), s.activities[sessionID]...)
	s.mu.Unlock()
	JSON(w, http.StatusOK, map[string]any{"ok": true, "activities": acts})
}

func (s *Server) issueConsent(typ, description string, details map[string]any) *consent {
	if details == nil {
		details = map[string]any{}
	}
	details["type"] = typ
	c := &consent{
		ID:          uuid.NewString(),
		Description: description,
		Details:     details,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(consentTTL * time.Second),
	}
	s.mu.Lock()
	s.consents[c.ID] = c
	s.mu.Unlock()
	return c
}

// pushActivity appends a feed line. Caller holds s.mu.
func (s *Server) pushActivity(sessionID, icon, message string) {
	s.activities[sessionID] = append(s.activities[sessionID], activity{
		TS:      time.Now(),
		Icon:    icon,
		Message: message,
	})
}

// wantsConsent decides whether a message should trigger a consent proposal.
// The stub reacts to layout-change phrasing the way the real assistant does.
func wantsConsent(message string) bool {
	m := strings.ToLower(message)
	for _, kw := range []string{"layout", "disposition", "tableau de bord", "dashboard", "consent"} {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

func (s *Server) answerFor(message string, turn int) string {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "bonjour"), strings.Contains(m, "hello"):
		return "Bonjour ! Je suis M.A.X., votre assistant CRM. Comment puis-je vous aider ?"
	case wantsConsent(message):
		return "Je peux modifier la disposition du tableau de bord. Cette action nécessite votre accord explicite."
	case strings.Contains(m, "lead"):
		return "Vous avez 12 leads actifs cette semaine, dont 3 à relancer en priorité."
	default:
		return fmt.Sprintf("Bien reçu (tour %d). Je m'en occupe.", turn)
	}
}
