package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 2 * time.Second

// ActivityPoller refreshes the side-channel activity feed while a session
// exists. Polls are not cancelled when superseded; a slow response landing
// after a newer one simply loses (last write wins on the slice). The feed is
// held in memory only and does not survive a restart.
type ActivityPoller struct {
	client   *Client
	session  func() string
	logger   *zap.Logger
	interval time.Duration

	mu         sync.Mutex
	activities []Activity
	cancel     context.CancelFunc
}

func NewActivityPoller(client *Client, session func() string, logger *zap.Logger) *ActivityPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityPoller{
		client:   client,
		session:  session,
		logger:   logger,
		interval: defaultPollInterval,
	}
}

// Start begins polling. Calling Start on a running poller is a no-op.
func (p *ActivityPoller) Start() {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(ctx)
}

func (p *ActivityPoller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *ActivityPoller) poll(ctx context.Context) {
	id := p.session()
	if id == "" {
		return
	}
	acts, err := p.client.Activities(ctx, id)
	if err != nil {
		p.logger.Debug("activity poll failed", zap.Error(err))
		return
	}
	p.mu.Lock()
	p.activities = acts
	p.mu.Unlock()
}

// Stop halts polling. In-flight requests are not interrupted.
func (p *ActivityPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *ActivityPoller) Activities() []Activity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Activity(nil), p.activities...)
}
