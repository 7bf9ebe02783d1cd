package world

import (
	"blockhaven/internal/protocol"
)

// scheduledEvent is a deferred state transition keyed by tick. Events hold
// session ids, not pointers, so a disconnect between scheduling and firing
// is a clean no-op.
type scheduledEvent struct {
	dueTick uint64
	kind    string
	target  string
}

func (w *World) scheduleRespawn(sessionID string) {
	w.scheduled = append(w.scheduled, scheduledEvent{
		dueTick: w.tick.Load() + uint64(w.cfg.RespawnDelayTicks),
		kind:    "respawn",
		target:  sessionID,
	})
}

func (w *World) runScheduled() {
	now := w.tick.Load()
	keep := w.scheduled[:0]
	for _, ev := range w.scheduled {
		if ev.dueTick > now {
			keep = append(keep, ev)
			continue
		}
		switch ev.kind {
		case "respawn":
			w.fireRespawn(ev.target)
		}
	}
	w.scheduled = keep
}

func (w *World) fireRespawn(sessionID string) {
	s := w.sessions[sessionID]
	if s == nil || s.State != StateJoined || !s.Dead {
		return
	}
	s.Dead = false
	s.HP = s.MaxHP
	s.Pos = w.spawnPosFor(s.Name)
	w.streamChunks(s)
	w.broadcast(protocol.MustEncode(protocol.TypePlayerRespawn, "", protocol.PlayerRespawnMsg{
		PlayerID: s.ID,
		Pos:      [3]float64{s.Pos.X(), s.Pos.Y(), s.Pos.Z()},
		HP:       s.HP,
	}))
	w.appendAudit("RESPAWN", s.ID, nil)
}
