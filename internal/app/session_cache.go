package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	cacheSchemaVersion = 1
	cacheMaxMessages   = 50
	cacheTTL           = 72 * time.Hour
)

// SessionCache persists the current session pointer and a display window of
// its transcript as a single JSON blob on disk. It is a best-effort
// convenience: every failure is logged and swallowed, degrading to "no
// persistence", never to an error the caller has to handle.
//
// Expiry is hard, checked at load time against LastActivity, and not sliding
// on read. The 50-message cap only bounds what is re-displayed after a
// restart; the backend's own memory is keyed by session id and unaffected.
type SessionCache struct {
	path   string
	logger *zap.Logger

	now func() time.Time
}

type cacheBlob struct {
	Version      int       `json:"version"`
	SessionID    string    `json:"sessionId"`
	Messages     []Message `json:"messages"`
	LastActivity int64     `json:"lastActivity"` // epoch millis
}

func NewSessionCache(dataDir string, logger *zap.Logger) *SessionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionCache{
		path:   filepath.Join(dataDir, "session.json"),
		logger: logger,
		now:    time.Now,
	}
}

// Load returns the cached session and messages, or ok=false when there is no
// usable entry. An expired or version-mismatched blob is deleted on sight.
func (c *SessionCache) Load() (sessionID string, msgs []Message, ok bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("session cache read failed", zap.Error(err))
		}
		return "", nil, false
	}

	var blob cacheBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		c.logger.Warn("session cache corrupt, discarding", zap.Error(err))
		c.Clear()
		return "", nil, false
	}
	if blob.Version != cacheSchemaVersion {
		c.logger.Info("session cache schema mismatch, discarding",
			zap.Int("found", blob.Version), zap.Int("want", cacheSchemaVersion))
		c.Clear()
		return "", nil, false
	}
	last := time.UnixMilli(blob.LastActivity)
	if c.now().Sub(last) > cacheTTL {
		c.logger.Info("session cache expired, discarding",
			zap.Time("last_activity", last))
		c.Clear()
		return "", nil, false
	}
	return blob.SessionID, blob.Messages, true
}

// Save overwrites the blob with the session id and the last 50 messages.
// Written via temp file + rename so a crash cannot leave a torn blob.
func (c *SessionCache) Save(sessionID string, msgs []Message) {
	if len(msgs) > cacheMaxMessages {
		msgs = msgs[len(msgs)-cacheMaxMessages:]
	}
	blob := cacheBlob{
		Version:      cacheSchemaVersion,
		SessionID:    sessionID,
		Messages:     msgs,
		LastActivity: c.now().UnixMilli(),
	}
	data, err := json.Marshal(blob)
	if err != nil {
		c.logger.Warn("session cache marshal failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		c.logger.Warn("session cache mkdir failed", zap.Error(err))
		return
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Warn("session cache write failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.logger.Warn("session cache rename failed", zap.Error(err))
	}
}

func (c *SessionCache) Clear() {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("session cache remove failed", zap.Error(err))
	}
}

// Path exposes the blob location for diagnostics.
func (c *SessionCache) Path() string { return c.path }
