package world

import "time"

// sendTo delivers one frame to a single session, dropping the oldest
// queued frame when the client cannot keep up. A slow client degrades its
// own stream, never the loop.
func (w *World) sendTo(s *Session, b []byte) {
	if s == nil || s.Out == nil || b == nil {
		return
	}
	select {
	case s.Out <- b:
		return
	default:
	}
	select {
	case <-s.Out:
	default:
	}
	select {
	case s.Out <- b:
	default:
	}
}

// broadcast fans one frame out to every joined session.
func (w *World) broadcast(b []byte) {
	for _, s := range w.sessions {
		if s.State == StateJoined {
			w.sendTo(s, b)
		}
	}
}

func (w *World) broadcastExcept(sessionID string, b []byte) {
	for _, s := range w.sessions {
		if s.State == StateJoined && s.ID != sessionID {
			w.sendTo(s, b)
		}
	}
}

// appendAudit records a mutating action in the bounded in-memory ring and
// forwards it to the durable sink when one is attached.
func (w *World) appendAudit(kind, actor string, detail map[string]any) {
	rec := AuditRecord{
		TS:     time.Now().UnixMilli(),
		Tick:   w.tick.Load(),
		Kind:   kind,
		Actor:  actor,
		Detail: detail,
	}
	if cap(w.auditRing) == 0 {
		return
	}
	if len(w.auditRing) < cap(w.auditRing) {
		w.auditRing = append(w.auditRing, rec)
	} else {
		w.auditRing[w.auditnext] = rec
		w.auditnext = (w.auditnext + 1) % cap(w.auditRing)
	}
	if w.auditSink != nil {
		_ = w.auditSink.WriteAudit(rec)
	}
}

// AuditTail returns up to n most recent audit records, oldest first.
// Loop-goroutine only; exposed for the admin surface and tests.
func (w *World) AuditTail(n int) []AuditRecord {
	total := len(w.auditRing)
	if n <= 0 || total == 0 {
		return nil
	}
	if n > total {
		n = total
	}
	out := make([]AuditRecord, 0, n)
	// Ring order: auditnext is the oldest slot once the ring has wrapped.
	start := 0
	if total == cap(w.auditRing) {
		start = w.auditnext
	}
	for i := total - n; i < total; i++ {
		out = append(out, w.auditRing[(start+i)%total])
	}
	return out
}
