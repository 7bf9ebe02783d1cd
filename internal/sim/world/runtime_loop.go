package world

import (
	"context"
	"time"

	"blockhaven/internal/persistence/store"
	"blockhaven/internal/protocol"
)

// Run owns the tick loop. Auth requests are answered as they arrive so
// handshakes never wait a full tick; everything else is queued and applied
// inside step in arrival order.
func (w *World) Run(ctx context.Context) {
	defer close(w.done)

	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingIn []InboundEnvelope
	var pendingLeave []string

	for {
		select {
		case <-ctx.Done():
			w.shutdown(pendingLeave)
			return
		case <-w.stop:
			w.shutdown(pendingLeave)
			return
		case req := <-w.auth:
			w.handleAuth(req)
		case id := <-w.leave:
			pendingLeave = append(pendingLeave, id)
		case env := <-w.inbox:
			pendingIn = append(pendingIn, env)
		case <-ticker.C:
			w.step(pendingLeave, pendingIn)
			pendingLeave = pendingLeave[:0]
			pendingIn = pendingIn[:0]
		}
	}
}

// Stop asks the loop to flush and exit. Safe to call once.
func (w *World) Stop() { close(w.stop) }

// Done is closed once Run has finished its shutdown flush. Process exit
// must wait on it or a large dirty set can be cut off mid-write.
func (w *World) Done() <-chan struct{} { return w.done }

// step advances the simulation one tick. Ordering is fixed: departures,
// then client messages in arrival order, then creatures, then the clock,
// then deferred events, then persistence.
func (w *World) step(leaves []string, envelopes []InboundEnvelope) {
	start := time.Now()
	w.tick.Add(1)

	select {
	case failed := <-w.flushResults:
		w.chunks.ReMark(failed)
	default:
	}

	for _, id := range leaves {
		w.handleLeave(id)
	}
	for _, env := range envelopes {
		w.handleInbound(env)
	}

	for _, s := range w.sessions {
		if s.HitCooldown > 0 {
			s.HitCooldown--
		}
	}

	w.tickCreatures()

	if p := w.phase(); p != w.lastPhase {
		w.lastPhase = p
		w.broadcast(protocol.MustEncode(protocol.TypeWorldEvent, "", protocol.WorldEventMsg{
			Kind:  "TIME_OF_DAY",
			Phase: p,
			Time:  w.WorldTime(),
		}))
	}

	w.runScheduled()

	if w.cfg.FlushEveryTicks > 0 && w.tick.Load()%uint64(w.cfg.FlushEveryTicks) == 0 {
		w.requestFlush(false)
	}

	w.stepMS = float64(time.Since(start).Microseconds()) / 1000.0
	w.publishSnapshots()
}

// StepOnce drives one tick synchronously after draining queued channels.
// Test-only entry point; production always goes through Run.
func (w *World) StepOnce() {
	var pendingIn []InboundEnvelope
	var pendingLeave []string
	for {
		select {
		case req := <-w.auth:
			w.handleAuth(req)
		case id := <-w.leave:
			pendingLeave = append(pendingLeave, id)
		case env := <-w.inbox:
			pendingIn = append(pendingIn, env)
		default:
			w.step(pendingLeave, pendingIn)
			return
		}
	}
}

// requestFlush hands dirty chunk copies and a profile snapshot to the
// persistence goroutine. The sim never blocks on disk except during the
// final shutdown flush.
func (w *World) requestFlush(final bool) {
	if w.flushSink == nil {
		return
	}

	dirty := w.chunks.DirtySnapshot()
	profiles := make(map[string]protocol.Profile, len(w.profiles)+len(w.sessions))
	for name, p := range w.profiles {
		profiles[name] = p
	}
	for _, s := range w.sessions {
		if s.State == StateJoined || s.State == StateAuthenticated {
			profiles[s.Name] = s.Profile
		}
	}
	if final {
		done := make(chan []store.ChunkKey, 1)
		w.flushSink <- store.FlushRequest{Chunks: dirty, Profiles: profiles, Done: done}
		select {
		case <-done:
		case <-time.After(10 * time.Second):
		}
		return
	}

	req := store.FlushRequest{Chunks: dirty, Profiles: profiles, Done: w.flushResults}
	select {
	case w.flushSink <- req:
	default:
		// Writer is behind; keep the chunks dirty and retry next interval.
		keys := make([]store.ChunkKey, 0, len(dirty))
		for k := range dirty {
			keys = append(keys, k)
		}
		w.chunks.ReMark(keys)
	}
}

func (w *World) shutdown(pendingLeave []string) {
	for _, id := range pendingLeave {
		w.handleLeave(id)
	}
	w.requestFlush(true)
}

func (w *World) publishSnapshots() {
	joined := 0
	for _, s := range w.sessions {
		if s.State == StateJoined {
			joined++
		}
	}
	up := int64(time.Since(w.started).Seconds())

	w.metricsMu.Lock()
	w.lastMetrics = Metrics{
		Tick:      w.tick.Load(),
		Sessions:  len(w.sessions),
		Creatures: len(w.creatures),
		Chunks:    w.chunks.Loaded(),
		StepMS:    w.stepMS,
		UptimeSec: up,
	}
	w.lastStatus = Status{
		Players:   joined,
		WorldTime: w.WorldTime(),
		UptimeSec: up,
	}
	w.metricsMu.Unlock()
}

// Metrics returns the last published per-tick snapshot. Safe off-loop.
func (w *World) Metrics() Metrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.lastMetrics
}

// CurrentStatus returns the last published /status view. Safe off-loop.
func (w *World) CurrentStatus() Status {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.lastStatus
}
