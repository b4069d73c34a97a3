package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Controller owns the chat session lifecycle: session identity, the message
// log, delivery in both modes (request/response and streamed), the running
// token counter, and consent injection. All dependencies are injected so
// tests can build isolated instances; there is no package-level state.
type Controller struct {
	client  *Client
	cache   *SessionCache
	archive *Archive
	logger  *zap.Logger

	log  *MessageLog
	gate *ConsentGate

	mu        sync.Mutex
	sessionID string
	mode      Mode
	tokens    int
	loading   bool
	streaming bool
}

// NewController wires the controller and restores any cached session younger
// than the 72h expiry. archive may be nil (no transcript archive).
func NewController(client *Client, cache *SessionCache, archive *Archive, mode Mode, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		client:  client,
		cache:   cache,
		archive: archive,
		logger:  logger,
		log:     NewMessageLog(),
		mode:    mode,
	}
	c.gate = newConsentGate(client, c.log, logger)

	if cache != nil {
		if id, msgs, ok := cache.Load(); ok {
			c.sessionID = id
			c.log.Replace(msgs)
			for _, m := range msgs {
				c.tokens += estimateTokens(m.Content)
			}
			logger.Info("session restored", zap.String("session_id", id), zap.Int("messages", len(msgs)))
		}
		c.log.SetOnChange(c.persist)
	}
	return c
}

// persist runs after every message-log mutation. A cleared log with no
// session means resetConversation ran: the cache entry is removed rather
// than rewritten empty.
func (c *Controller) persist(msgs []Message) {
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	if id == "" && len(msgs) == 0 {
		c.cache.Clear()
		return
	}
	c.cache.Save(id, msgs)
}

func (c *Controller) Log() *MessageLog   { return c.log }
func (c *Controller) Gate() *ConsentGate { return c.gate }
func (c *Controller) Client() *Client    { return c.client }

func (c *Controller) Logger() *zap.Logger { return c.logger }

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) Tokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// Busy reports whether a send or a stream is in flight. Senders are expected
// to refuse new input while true; the controller itself does not reject
// overlapping calls.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading || c.streaming
}

func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// producer delivers assistant content for one exchange. It pushes incremental
// content through emit and may return response metadata (session id, pending
// consent). The streamed and single-shot paths differ only in their producer.
type producer func(ctx context.Context, emit func(delta string)) (*ChatResponse, error)

// SendMessage validates and appends the user's message, then runs one
// delivery round trip. The user message stays in the log even when delivery
// fails, so the user can see what they asked and retry.
func (c *Controller) SendMessage(ctx context.Context, text string, useStreaming bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &ValidationError{Msg: "message is empty"}
	}

	user := NewTextMessage(RoleUser, text)
	c.log.Append(user)
	c.record(user)
	c.addTokens(text)

	c.setBusy(true, useStreaming)
	defer c.setBusy(false, false)

	var produce producer
	if useStreaming {
		produce = func(ctx context.Context, emit func(string)) (*ChatResponse, error) {
			return nil, c.client.ChatStream(ctx, c.SessionID(), text, emit)
		}
	} else {
		produce = func(ctx context.Context, emit func(string)) (*ChatResponse, error) {
			resp, err := c.client.Chat(ctx, ChatRequest{
				SessionID: c.SessionID(),
				Message:   text,
				Mode:      c.Mode().Wire(),
			})
			if err != nil {
				return nil, err
			}
			emit(resp.Text())
			return resp, nil
		}
	}
	return c.deliver(ctx, produce)
}

// deliver is the single delivery path shared by both modes. Content arrives
// through emit and is merged into the newest assistant message; metadata (new
// session id, pending consent) is applied after the producer finishes, so a
// consent entry always lands immediately after its answer.
func (c *Controller) deliver(ctx context.Context, produce producer) error {
	started := c.log.Len()
	meta, err := produce(ctx, func(delta string) {
		c.log.AmendLast(delta)
		c.addTokens(delta)
	})
	if err != nil {
		c.logger.Warn("delivery failed", zap.Error(err))
		return err
	}

	if meta != nil && meta.SessionID != "" {
		c.setSessionID(meta.SessionID)
	}

	if c.log.Len() > started {
		if last, ok := c.log.Last(); ok && last.Role == RoleAssistant {
			c.record(last)
		}
	}

	if meta != nil {
		if pc := meta.PendingConsent; pc != nil {
			entry := NewConsentMessage(pc.ConsentID, pc.Operation, pc.ExpiresIn)
			c.log.Append(entry)
			c.record(entry)
			c.gate.register(pc.ConsentID, pc.ExpiresIn)
			c.logger.Info("consent requested",
				zap.String("consent_id", pc.ConsentID),
				zap.String("operation", pc.Operation.Description),
				zap.Int("expires_in", pc.ExpiresIn))
		}
	}
	return nil
}

// UploadFile sends a local file for ingestion. An upload can be the first
// interaction of a session; the backend-confirmed session id and mode are
// adopted from the response.
func (c *Controller) UploadFile(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Msg: "no file selected"}
	}
	f, err := os.Open(path)
	if err != nil {
		return &ValidationError{Msg: fmt.Sprintf("cannot open file: %v", err)}
	}
	defer f.Close()

	c.setBusy(true, false)
	defer c.setBusy(false, false)

	name := filepath.Base(path)
	resp, err := c.client.Upload(ctx, c.SessionID(), c.Mode(), name, f)
	if err != nil {
		c.logger.Warn("upload failed", zap.String("file", name), zap.Error(err))
		return err
	}

	if resp.SessionID != "" {
		c.setSessionID(resp.SessionID)
	}
	if m, ok := ParseMode(resp.Mode); ok {
		c.mu.Lock()
		c.mode = m
		c.mu.Unlock()
	}

	content := resp.Message
	if content == "" {
		ftype := resp.File.Type
		if ftype == "" {
			ftype = "inconnu"
		}
		content = fmt.Sprintf("Fichier %s analysé (type : %s).", name, ftype)
	}
	msg := NewTextMessage(RoleAssistant, content)
	c.log.Append(msg)
	c.record(msg)
	c.addTokens(content)
	return nil
}

// ChangeMode is local-only: the mode travels with every request instead of
// being sticky server-side state, so no round trip happens here.
func (c *Controller) ChangeMode(raw string) error {
	m, ok := ParseMode(raw)
	if !ok {
		return &ValidationError{Msg: fmt.Sprintf("unknown mode %q", raw)}
	}
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
	return nil
}

// ResetConversation drops the session synchronously: log, token counter,
// session id, and the persisted cache entry. No close call is made to the
// backend; the old server-side session simply becomes unreferenced. A new id
// is assigned lazily by the next successful send.
func (c *Controller) ResetConversation() {
	c.mu.Lock()
	c.sessionID = ""
	c.tokens = 0
	c.mu.Unlock()
	c.log.Clear()
	if c.cache != nil {
		c.cache.Clear()
	}
	c.logger.Info("conversation reset")
}

// LoadHistory is deliberately a no-op: history is resumed server-side via the
// session id sent with each request. There is no history endpoint to fetch.
func (c *Controller) LoadHistory() {}

func (c *Controller) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Controller) setBusy(loading, streaming bool) {
	c.mu.Lock()
	c.loading = loading
	c.streaming = loading && streaming
	c.mu.Unlock()
}

func (c *Controller) addTokens(text string) {
	n := estimateTokens(text)
	if n == 0 {
		return
	}
	c.mu.Lock()
	c.tokens += n
	c.mu.Unlock()
}

// record mirrors an entry into the transcript archive. Best effort, same
// policy as the cache: failures are logged, never surfaced.
func (c *Controller) record(m Message) {
	if c.archive == nil {
		return
	}
	id := c.SessionID()
	if id == "" {
		id = "unassigned"
	}
	if err := c.archive.Record(id, m); err != nil {
		c.logger.Warn("archive write failed", zap.Error(err))
	}
}
