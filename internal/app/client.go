package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// Client talks to the M.A.X. assistant backend. All business logic (lead
// storage, consent gating, message dispatch) lives server-side; this client
// only shuttles the wire payloads back and forth.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
	Mode      string `json:"mode"`
}

// PendingConsent is the consent envelope a chat response may carry.
type PendingConsent struct {
	ConsentID string    `json:"consentId"`
	Operation Operation `json:"operation"`
	ExpiresIn int       `json:"expiresIn"`
}

type ChatResponse struct {
	Answer         string          `json:"answer"`
	Message        string          `json:"message"`
	SessionID      string          `json:"sessionId"`
	PendingConsent *PendingConsent `json:"pendingConsent,omitempty"`
}

// Text returns the assistant's reply; the backend uses either field.
func (r *ChatResponse) Text() string {
	if r.Answer != "" {
		return r.Answer
	}
	return r.Message
}

type UploadResponse struct {
	Mode      string `json:"mode"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	File      struct {
		Type string `json:"type"`
	} `json:"file"`
}

type ExecuteConsentResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Audit   *struct {
		ConsentID  string `json:"consentId"`
		ReportPath string `json:"reportPath"`
	} `json:"audit,omitempty"`
}

// apiError is the error envelope the backend uses across endpoints.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e apiError) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, "send message", "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload sends a file as multipart content together with the current session
// id and mode. Upload can be the very first interaction of a session.
func (c *Client) Upload(ctx context.Context, sessionID string, mode Mode, filename string, r io.Reader) (*UploadResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, &TransportError{Op: "upload file", Msg: "could not build upload", Err: err}
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, &TransportError{Op: "upload file", Msg: "could not read file", Err: err}
	}
	if sessionID != "" {
		_ = w.WriteField("sessionId", sessionID)
	}
	_ = w.WriteField("mode", mode.Wire())
	if err := w.Close(); err != nil {
		return nil, &TransportError{Op: "upload file", Msg: "could not build upload", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/upload", &body)
	if err != nil {
		return nil, &TransportError{Op: "upload file", Msg: "invalid request", Err: err}
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(httpReq)

	var resp UploadResponse
	if err := c.do(httpReq, "upload file", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestConsent asks the backend to issue a consent for a sensitive
// operation. The chat flow normally does this server-side; the endpoint is
// exposed for collaborators that drive the gate directly.
func (c *Client) RequestConsent(ctx context.Context, typ, description string, details map[string]any) (*PendingConsent, error) {
	req := map[string]any{"type": typ, "description": description, "details": details}
	var resp struct {
		Success bool            `json:"success"`
		Consent *PendingConsent `json:"consent"`
	}
	if err := c.postJSON(ctx, "request consent", "/api/consent/request", req, &resp); err != nil {
		return nil, err
	}
	if resp.Consent == nil {
		return nil, &TransportError{Op: "request consent", Msg: "backend returned no consent"}
	}
	return resp.Consent, nil
}

func (c *Client) ExecuteConsent(ctx context.Context, consentID string) (*ExecuteConsentResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/api/consent/execute/"+url.PathEscape(consentID), nil)
	if err != nil {
		return nil, &TransportError{Op: "execute consent", Msg: "invalid request", Err: err}
	}
	c.authorize(httpReq)
	var resp ExecuteConsentResponse
	if err := c.do(httpReq, "execute consent", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AuditReport(ctx context.Context, consentID string) (*AuditReport, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/api/consent/audit/"+url.PathEscape(consentID), nil)
	if err != nil {
		return nil, &TransportError{Op: "audit report", Msg: "invalid request", Err: err}
	}
	c.authorize(httpReq)
	var resp struct {
		Success bool         `json:"success"`
		Report  *AuditReport `json:"report"`
	}
	if err := c.do(httpReq, "audit report", &resp); err != nil {
		return nil, err
	}
	if resp.Report == nil {
		return nil, &TransportError{Op: "audit report", Msg: "backend returned no report"}
	}
	return resp.Report, nil
}

func (c *Client) Activities(ctx context.Context, sessionID string) ([]Activity, error) {
	u := c.BaseURL + "/api/chat/activities?sessionId=" + url.QueryEscape(sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Op: "activities", Msg: "invalid request", Err: err}
	}
	c.authorize(httpReq)
	var resp struct {
		OK         bool       `json:"ok"`
		Activities []Activity `json:"activities"`
	}
	if err := c.do(httpReq, "activities", &resp); err != nil {
		return nil, err
	}
	return resp.Activities, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return &TransportError{Op: op, Msg: "could not encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: op, Msg: "invalid request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)
	return c.do(httpReq, op, out)
}

// do runs the request and decodes a 2xx body into out. Non-2xx responses are
// converted to a TransportError carrying the backend's message when the body
// held one, else a generic fallback with the status code.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &TransportError{Op: op, Msg: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &TransportError{Op: op, Msg: "could not read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if jsonErr := json.Unmarshal(body, &ae); jsonErr == nil && ae.text() != "" {
			return &TransportError{Op: op, Msg: ae.text()}
		}
		return &TransportError{Op: op, Msg: fmt.Sprintf("backend returned status %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, Msg: "malformed response", Err: err}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}
