package app

import "sync"

// MessageLog is the ordered, append-only conversation transcript. Entries are
// never deleted or reordered; the only in-place mutations allowed are merging
// streamed content into the newest assistant message and updating the status
// of a consent entry. Keeping it a log is what makes the consent state
// machine easy to reason about: a consent entry's position never moves.
type MessageLog struct {
	mu   sync.Mutex
	msgs []Message

	// onChange is invoked with a snapshot after every mutation. The
	// controller uses it to persist the session cache.
	onChange func([]Message)
}

func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// SetOnChange registers the mutation hook. Must be set before concurrent use.
func (l *MessageLog) SetOnChange(fn func([]Message)) {
	l.onChange = fn
}

func (l *MessageLog) Append(m Message) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
}

// AmendLast merges a streamed content delta into the most recent message. If
// the log is empty or the last entry is not a plain assistant message, a new
// assistant message is created instead, so streaming can never corrupt a user
// message or a consent entry.
func (l *MessageLog) AmendLast(delta string) {
	l.mu.Lock()
	n := len(l.msgs)
	if n > 0 && l.msgs[n-1].Role == RoleAssistant && l.msgs[n-1].Kind == KindText {
		l.msgs[n-1].Content += delta
	} else {
		l.msgs = append(l.msgs, NewTextMessage(RoleAssistant, delta))
	}
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
}

// UpdateConsent applies fn to the consent entry with the given id. Reports
// whether an entry was found. This amends consent metadata only; content and
// position are untouched.
func (l *MessageLog) UpdateConsent(consentID string, fn func(*ConsentRequest)) bool {
	l.mu.Lock()
	found := false
	for i := range l.msgs {
		if l.msgs[i].Kind == KindConsent && l.msgs[i].Consent != nil && l.msgs[i].Consent.ConsentID == consentID {
			fn(l.msgs[i].Consent)
			found = true
			break
		}
	}
	var snap []Message
	if found {
		snap = l.snapshotLocked()
	}
	l.mu.Unlock()
	if found {
		l.notify(snap)
	}
	return found
}

// Consent returns a copy of the consent entry with the given id.
func (l *MessageLog) Consent(consentID string) (ConsentRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.msgs {
		if l.msgs[i].Kind == KindConsent && l.msgs[i].Consent != nil && l.msgs[i].Consent.ConsentID == consentID {
			return *l.msgs[i].Consent, true
		}
	}
	return ConsentRequest{}, false
}

func (l *MessageLog) Clear() {
	l.mu.Lock()
	l.msgs = nil
	l.mu.Unlock()
	l.notify(nil)
}

// Replace swaps in a restored transcript (session cache load). Not part of
// the conversation flow.
func (l *MessageLog) Replace(msgs []Message) {
	l.mu.Lock()
	l.msgs = append([]Message(nil), msgs...)
	l.mu.Unlock()
}

func (l *MessageLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func (l *MessageLog) Last() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.msgs) == 0 {
		return Message{}, false
	}
	return l.msgs[len(l.msgs)-1], true
}

func (l *MessageLog) snapshotLocked() []Message {
	return append([]Message(nil), l.msgs...)
}

func (l *MessageLog) notify(snap []Message) {
	if l.onChange != nil {
		l.onChange(snap)
	}
}
