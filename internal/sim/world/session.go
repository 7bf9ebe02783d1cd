package world

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/terrain"
)

type SessionState int

const (
	StateConnected SessionState = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
)

const hotbarSlots = 9

// Session is the server-side state for one connected, authenticated actor.
// Owned exclusively by the world loop.
type Session struct {
	ID      string
	Name    string
	IsAgent bool
	State   SessionState

	Pos   mgl64.Vec3
	Yaw   float64
	Pitch float64

	HP          int
	MaxHP       int
	HitCooldown int
	Dead        bool

	Hotbar       [hotbarSlots]uint8
	SelectedSlot int

	Profile protocol.Profile

	// Chunk streaming bookkeeping: which chunk keys this connection has
	// already received, and the chunk the player was last seen in.
	sent      map[ChunkKey]struct{}
	lastChunk ChunkKey
	hasChunk  bool

	speakWindowStart uint64
	speakCount       int

	Out chan []byte
}

func (s *Session) chunkCoord() ChunkKey {
	return ChunkKey{
		CX: floorDiv(int(math.Floor(s.Pos.X())), terrain.ChunkW),
		CZ: floorDiv(int(math.Floor(s.Pos.Z())), terrain.ChunkW),
	}
}

func (s *Session) blockPos() (int, int, int) {
	return int(math.Floor(s.Pos.X())), int(math.Floor(s.Pos.Y())), int(math.Floor(s.Pos.Z()))
}

// handleAuth runs synchronously in the loop: it resolves (or derives) the
// profile and answers on req.Resp. The session starts in Authenticated and
// enters the world only on JOIN.
func (w *World) handleAuth(req AuthRequest) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 32 {
		req.Resp <- AuthResponse{Err: &protocol.ErrorBody{
			Code:    protocol.ErrInvalidArgument,
			Message: "name must be 1-32 characters",
		}}
		return
	}
	for _, s := range w.sessions {
		if s.Name == name && s.State != StateDisconnected {
			req.Resp <- AuthResponse{Err: &protocol.ErrorBody{
				Code:    protocol.ErrConflict,
				Message: "name already connected",
			}}
			return
		}
	}

	prof, ok := w.profiles[name]
	if !ok {
		prof = deriveProfile(name)
		w.profiles[name] = prof
	}

	id := uuid.NewString()
	sess := &Session{
		ID:      id,
		Name:    name,
		IsAgent: req.IsAgent,
		State:   StateAuthenticated,
		MaxHP:   20,
		HP:      20,
		Profile: prof,
		sent:    map[ChunkKey]struct{}{},
		Out:     req.Out,
	}
	w.sessions[id] = sess

	req.Resp <- AuthResponse{
		SessionID: id,
		OK: &protocol.AuthOKMsg{
			AccountID: id,
			Name:      name,
			Profile:   prof,
		},
	}
}

// handleJoinWorld moves an authenticated session into the world: spawn
// placement, snapshot, initial chunk stream, and the join broadcast.
func (w *World) handleJoinWorld(sess *Session, env protocol.Envelope) {
	if sess.State != StateAuthenticated {
		code := protocol.ErrConflict
		if sess.State == StateConnected {
			code = protocol.ErrUnauthenticated
		}
		w.sendTo(sess, protocol.MustEncode(protocol.TypeActionResult, env.ID, protocol.ActionResultMsg{
			ActionID: env.ID,
			OK:       false,
			Error:    &protocol.ErrorBody{Code: code, Message: "join not allowed in this state"},
		}))
		return
	}

	spawn := w.spawnPosFor(sess.Name)
	sess.Pos = spawn
	sess.State = StateJoined
	sess.Dead = false
	sess.HP = sess.MaxHP
	sess.Hotbar = [hotbarSlots]uint8{}
	sess.SelectedSlot = 0

	w.sendTo(sess, protocol.MustEncode(protocol.TypeWorldSnapshot, "", protocol.WorldSnapshotMsg{
		Spawn:      [3]float64{spawn.X(), spawn.Y(), spawn.Z()},
		WorldTime:  w.WorldTime(),
		DayTicks:   w.cfg.DayTicks,
		TickRateHz: w.cfg.TickRateHz,
		ChunkSize:  [3]int{terrain.ChunkW, terrain.ChunkH, terrain.ChunkW},
		SeaLevel:   terrain.SeaLevel,
		Seed:       w.cfg.Seed,
		Radius:     w.cfg.StreamRadius,
	}))
	w.streamChunks(sess)

	w.broadcastExcept(sess.ID, protocol.MustEncode(protocol.TypePlayerJoin, "", protocol.PlayerJoinMsg{
		PlayerID: sess.ID,
		Name:     sess.Name,
		IsAgent:  sess.IsAgent,
		Pos:      [3]float64{spawn.X(), spawn.Y(), spawn.Z()},
	}))
	w.appendAudit("JOIN", sess.ID, map[string]any{"name": sess.Name})
}

// spawnPosFor derives a deterministic spawn column from the player name,
// then drops the player onto the surface. Keeping spawn a function of the
// name makes the join flow reproducible end to end.
func (w *World) spawnPosFor(name string) mgl64.Vec3 {
	seed := nameSeed(name)
	sx := int(seed%33) - 16
	sz := int((seed/33)%33) - 16
	y := w.chunks.SurfaceY(sx, sz)
	return mgl64.Vec3{float64(sx) + 0.5, float64(y + 1), float64(sz) + 0.5}
}

// handleLeave tears the session down and flushes its stats into the
// profile map; the next periodic flush persists it.
func (w *World) handleLeave(sessionID string) {
	sess := w.sessions[sessionID]
	if sess == nil || sess.State == StateDisconnected {
		return
	}
	wasJoined := sess.State == StateJoined
	sess.State = StateDisconnected
	w.profiles[sess.Name] = sess.Profile
	delete(w.sessions, sessionID)

	if wasJoined {
		w.broadcastExcept(sessionID, protocol.MustEncode(protocol.TypePlayerLeave, "", protocol.PlayerLeaveMsg{
			PlayerID: sessionID,
		}))
	}
	w.appendAudit("LEAVE", sessionID, map[string]any{"name": sess.Name})
	w.requestFlush(false)
}
