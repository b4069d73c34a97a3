package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConsentGate drives the approve/execute/audit handshake for backend-issued
// consents. The backend owns authorization and the actual mutation; the gate
// only forwards one approval per consent id and mirrors the outcome into the
// message log.
//
// Approve is reentrant-safe: the first caller for a consent id starts the
// execution and concurrent callers wait on the same in-flight call, so a
// double click can never double-invoke the backend.
type ConsentGate struct {
	client *Client
	log    *MessageLog
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]*approveCall
	timers   map[string]chan struct{}
}

type approveCall struct {
	done chan struct{}
	err  error
}

func newConsentGate(client *Client, log *MessageLog, logger *zap.Logger) *ConsentGate {
	return &ConsentGate{
		client:   client,
		log:      log,
		logger:   logger,
		inflight: make(map[string]*approveCall),
		timers:   make(map[string]chan struct{}),
	}
}

// register starts the advisory countdown for a freshly injected consent. The
// timer is purely client-side UX: the backend keeps its own deadline, and
// local expiry never cancels an approval already in flight.
func (g *ConsentGate) register(consentID string, expiresIn int) {
	if expiresIn <= 0 {
		g.log.UpdateConsent(consentID, func(cr *ConsentRequest) {
			cr.Remaining = 0
			cr.Status = ConsentExpired
		})
		return
	}
	stop := make(chan struct{})
	g.mu.Lock()
	g.timers[consentID] = stop
	g.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !g.tick(consentID) {
					return
				}
			}
		}
	}()
}

// tick advances the countdown by one second. Returns false once the timer
// should stop: the consent left pending state, hit zero, or disappeared.
func (g *ConsentGate) tick(consentID string) bool {
	alive := false
	g.log.UpdateConsent(consentID, func(cr *ConsentRequest) {
		if cr.Status != ConsentPending {
			return
		}
		cr.Remaining--
		if cr.Remaining <= 0 {
			cr.Remaining = 0
			cr.Status = ConsentExpired
			return
		}
		alive = true
	})
	return alive
}

// Approve executes the consent. One-shot: only a pending consent can be
// approved, and exactly one execute call reaches the backend regardless of
// how many callers race on the same id.
func (g *ConsentGate) Approve(ctx context.Context, consentID string) error {
	g.mu.Lock()
	if call, ok := g.inflight[consentID]; ok {
		g.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return &TransportError{Op: "execute consent", Msg: "cancelled", Err: ctx.Err()}
		}
	}

	cr, ok := g.log.Consent(consentID)
	if !ok {
		g.mu.Unlock()
		return &ProtocolError{ConsentID: consentID, Msg: "unknown consent"}
	}
	if cr.Status != ConsentPending {
		g.mu.Unlock()
		return &ProtocolError{ConsentID: consentID, Msg: "consent is " + string(cr.Status)}
	}

	call := &approveCall{done: make(chan struct{})}
	g.inflight[consentID] = call
	g.mu.Unlock()

	g.log.UpdateConsent(consentID, func(cr *ConsentRequest) {
		cr.Status = ConsentExecuting
	})

	resp, err := g.client.ExecuteConsent(ctx, consentID)
	if err != nil {
		g.log.UpdateConsent(consentID, func(cr *ConsentRequest) {
			cr.Status = ConsentError
			cr.Error = err.Error()
		})
		g.logger.Warn("consent execution failed",
			zap.String("consent_id", consentID), zap.Error(err))
		call.err = err
	} else {
		g.log.UpdateConsent(consentID, func(cr *ConsentRequest) {
			cr.Status = ConsentSuccess
			cr.AuditAvailable = true
		})
		g.logger.Info("consent executed",
			zap.String("consent_id", consentID),
			zap.Bool("audit", resp.Audit != nil))
	}

	close(call.done)
	g.mu.Lock()
	delete(g.inflight, consentID)
	g.mu.Unlock()
	return call.err
}

// AuditReport fetches the post-execution record for a consent. Failures are
// returned for inline display in the viewer.
func (g *ConsentGate) AuditReport(ctx context.Context, consentID string) (*AuditReport, error) {
	return g.client.AuditReport(ctx, consentID)
}

// Close stops all countdown timers. Used on shutdown.
func (g *ConsentGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, stop := range g.timers {
		close(stop)
		delete(g.timers, id)
	}
}
