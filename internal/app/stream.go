package app

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// StreamChunk is one server-push event from /chat/stream. Exactly one of the
// three fields is meaningful per event.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChatStream opens the server-push connection for one streamed exchange and
// invokes emit for every content chunk, in arrival order. It returns once the
// backend signals done, an error event arrives, the transport fails, or ctx
// is cancelled. The connection is always closed on return; a transport-level
// failure mid-stream has the same effect as an error event.
func (c *Client) ChatStream(ctx context.Context, sessionID, message string, emit func(content string)) error {
	q := url.Values{}
	q.Set("message", message)
	if sessionID != "" {
		q.Set("sessionId", sessionID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/chat/stream?"+q.Encode(), nil)
	if err != nil {
		return &TransportError{Op: "stream message", Msg: "invalid request", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	// The default client timeout would kill a healthy long stream.
	httpClient := &http.Client{Transport: c.HTTP.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "stream message", Msg: "backend unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: "stream message", Msg: "stream refused by backend"}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &chunk); err != nil {
			return &TransportError{Op: "stream message", Msg: "malformed stream event", Err: err}
		}
		switch {
		case chunk.Error != "":
			return &TransportError{Op: "stream message", Msg: chunk.Error}
		case chunk.Done:
			return nil
		case chunk.Content != "":
			emit(chunk.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return &TransportError{Op: "stream message", Msg: "stream cancelled", Err: ctx.Err()}
		}
		return &TransportError{Op: "stream message", Msg: "stream interrupted", Err: err}
	}
	// EOF without a done event: the backend hung up early.
	return &TransportError{Op: "stream message", Msg: "stream ended unexpectedly"}
}
