// Package world implements the authoritative simulation: one goroutine
// owns every chunk, session, and creature, and all mutation flows through
// its tick loop.
package world

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"blockhaven/internal/persistence/store"
	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/terrain"
	"blockhaven/internal/sim/tuning"
)

// AuthRequest is handed to the loop by the transport after a successful
// handshake frame. The response is delivered on Resp exactly once.
type AuthRequest struct {
	Name    string
	IsAgent bool
	Out     chan []byte
	Resp    chan AuthResponse
}

type AuthResponse struct {
	SessionID string
	OK        *protocol.AuthOKMsg
	Err       *protocol.ErrorBody
}

// InboundEnvelope is one post-auth client message, tagged with the session
// it arrived on.
type InboundEnvelope struct {
	SessionID string
	Env       protocol.Envelope
}

// AuditRecord is the append-only observability trail for mutating actions.
type AuditRecord struct {
	TS     int64          `json:"ts"`
	Tick   uint64         `json:"tick"`
	Kind   string         `json:"kind"`
	Actor  string         `json:"actor"`
	Detail map[string]any `json:"detail,omitempty"`
}

type AuditSink interface {
	WriteAudit(rec AuditRecord) error
}

// World is a single-threaded authoritative simulation. All state must be
// accessed only from the loop goroutine (or via StepOnce in tests).
type World struct {
	cfg tuning.Tuning

	tick    atomic.Uint64
	started time.Time
	rng     *rand.Rand

	chunks    *ChunkStore
	sessions  map[string]*Session
	profiles  map[string]protocol.Profile
	creatures map[string]*Creature

	auth  chan AuthRequest
	inbox chan InboundEnvelope
	leave chan string
	stop  chan struct{}
	done  chan struct{}

	scheduled []scheduledEvent

	auditRing []AuditRecord
	auditnext int
	auditSink AuditSink

	flushSink    chan<- store.FlushRequest
	flushResults chan []store.ChunkKey

	lastPhase string
	stepMS    float64

	metricsMu   sync.Mutex
	lastMetrics Metrics
	lastStatus  Status
}

// ChunkLoader is the slice of the persistence layer the chunk store needs.
type ChunkLoader interface {
	ReadChunk(k store.ChunkKey, wantLen int) ([]byte, bool)
}

func New(cfg tuning.Tuning, loader ChunkLoader, profiles map[string]protocol.Profile) *World {
	if profiles == nil {
		profiles = map[string]protocol.Profile{}
	}
	w := &World{
		cfg:          cfg,
		started:      time.Now(),
		rng:          rand.New(rand.NewSource(cfg.Seed ^ 0x5eed)),
		chunks:       NewChunkStore(terrain.NewGenerator(cfg.Seed), loader),
		sessions:     map[string]*Session{},
		profiles:     profiles,
		creatures:    map[string]*Creature{},
		auth:         make(chan AuthRequest, 64),
		inbox:        make(chan InboundEnvelope, 1024),
		leave:        make(chan string, 64),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		auditRing:    make([]AuditRecord, 0, cfg.AuditRingSize),
		flushResults: make(chan []store.ChunkKey, 4),
		lastPhase:    "day",
	}
	return w
}

func (w *World) SetAuditSink(s AuditSink)                  { w.auditSink = s }
func (w *World) SetFlushSink(ch chan<- store.FlushRequest) { w.flushSink = ch }

func (w *World) Auth() chan<- AuthRequest      { return w.auth }
func (w *World) Inbox() chan<- InboundEnvelope { return w.inbox }
func (w *World) Leave() chan<- string          { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Metrics is read from HTTP handlers, so only atomically-safe or
// loop-snapshot values belong here.
type Metrics struct {
	Tick      uint64  `json:"tick"`
	Sessions  int     `json:"sessions"`
	Creatures int     `json:"creatures"`
	Chunks    int     `json:"loaded_chunks"`
	StepMS    float64 `json:"step_ms"`
	UptimeSec int64   `json:"uptime_sec"`
}

// Status is the /status side-channel view.
type Status struct {
	Players   int   `json:"players"`
	WorldTime int64 `json:"world_time"`
	UptimeSec int64 `json:"uptime_sec"`
}

// WorldTime is the simulation clock in ticks.
func (w *World) WorldTime() int64 { return int64(w.tick.Load()) }

// timeOfDay maps the clock onto [0,1).
func (w *World) timeOfDay() float64 {
	return float64(w.tick.Load()%uint64(w.cfg.DayTicks)) / float64(w.cfg.DayTicks)
}

// dayPhase buckets time-of-day: the first 5% of the cycle is dawn and the
// last 45% splits into dusk and night. Creature night-gating keys off this.
func dayPhase(t float64) string {
	switch {
	case t < 0.05:
		return "dawn"
	case t < 0.55:
		return "day"
	case t < 0.65:
		return "dusk"
	default:
		return "night"
	}
}

func (w *World) phase() string { return dayPhase(w.timeOfDay()) }
