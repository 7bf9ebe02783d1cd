package world

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/blocks"
	"blockhaven/internal/sim/tuning"
)

func mgl64Vec(x, y, z float64) mgl64.Vec3 { return mgl64.Vec3{x, y, z} }

func mustUnmarshal(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	cfg := tuning.Defaults()
	// Creatures are spawned explicitly where a test needs them.
	cfg.Creatures.SpawnEveryTicks = 0
	return New(cfg, nil, nil)
}

func authSession(t *testing.T, w *World, name string) (*Session, chan []byte) {
	t.Helper()
	out := make(chan []byte, 512)
	resp := make(chan AuthResponse, 1)
	w.handleAuth(AuthRequest{Name: name, Out: out, Resp: resp})
	r := <-resp
	if r.Err != nil {
		t.Fatalf("auth %s: %v", name, r.Err)
	}
	return w.sessions[r.SessionID], out
}

func joinSession(t *testing.T, w *World, s *Session) {
	t.Helper()
	w.handleInbound(InboundEnvelope{
		SessionID: s.ID,
		Env:       protocol.Envelope{Type: protocol.TypeJoin, ID: "j1"},
	})
	if s.State != StateJoined {
		t.Fatalf("session %s did not join", s.Name)
	}
}

func sendAction(w *World, s *Session, act protocol.ActionMsg) {
	payload, _ := json.Marshal(act)
	w.handleInbound(InboundEnvelope{
		SessionID: s.ID,
		Env:       protocol.Envelope{Type: protocol.TypeAction, Payload: payload},
	})
}

func drain(t *testing.T, out chan []byte) []protocol.Envelope {
	t.Helper()
	var envs []protocol.Envelope
	for {
		select {
		case b := <-out:
			env, err := protocol.Decode(b)
			if err != nil {
				t.Fatalf("server emitted a malformed frame: %v", err)
			}
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

func findResult(t *testing.T, envs []protocol.Envelope, actionID string) protocol.ActionResultMsg {
	t.Helper()
	for _, env := range envs {
		if env.Type != protocol.TypeActionResult {
			continue
		}
		var res protocol.ActionResultMsg
		if err := json.Unmarshal(env.Payload, &res); err != nil {
			t.Fatalf("result payload: %v", err)
		}
		if res.ActionID == actionID {
			return res
		}
	}
	t.Fatalf("no ACTION_RESULT for %s", actionID)
	return protocol.ActionResultMsg{}
}

func countType(envs []protocol.Envelope, typ string) int {
	n := 0
	for _, env := range envs {
		if env.Type == typ {
			n++
		}
	}
	return n
}

func TestAuthValidation(t *testing.T) {
	w := newTestWorld(t)

	resp := make(chan AuthResponse, 1)
	w.handleAuth(AuthRequest{Name: "   ", Out: make(chan []byte, 1), Resp: resp})
	if r := <-resp; r.Err == nil || r.Err.Code != protocol.ErrInvalidArgument {
		t.Fatalf("blank name: got %+v", r.Err)
	}

	_, _ = authSession(t, w, "Rowan")

	w.handleAuth(AuthRequest{Name: "Rowan", Out: make(chan []byte, 1), Resp: resp})
	if r := <-resp; r.Err == nil || r.Err.Code != protocol.ErrConflict {
		t.Fatalf("duplicate name: got %+v", r.Err)
	}
}

func TestProfileDeterministicAndPersistent(t *testing.T) {
	w := newTestWorld(t)
	s, _ := authSession(t, w, "Rowan")

	want := deriveProfile("Rowan")
	if s.Profile.Motto != want.Motto || s.Profile.BodyType != want.BodyType {
		t.Fatalf("derived profile not deterministic: %+v vs %+v", s.Profile, want)
	}

	joinSession(t, w, s)
	s.Profile.BlocksMined = 7
	w.handleLeave(s.ID)

	s2, _ := authSession(t, w, "Rowan")
	if s2.Profile.BlocksMined != 7 {
		t.Fatalf("profile stats lost across reconnect: %+v", s2.Profile)
	}
}

func TestJoinStreamsExactRadius(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)

	envs := drain(t, out)
	if countType(envs, protocol.TypeWorldSnapshot) != 1 {
		t.Fatalf("expected exactly one WORLD_SNAPSHOT")
	}

	r := w.cfg.StreamRadius
	wantChunks := (2*r + 1) * (2*r + 1)
	center := s.chunkCoord()
	seen := map[ChunkKey]int{}
	for _, env := range envs {
		if env.Type != protocol.TypeWorldChunk {
			continue
		}
		var msg protocol.WorldChunkMsg
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			t.Fatalf("chunk payload: %v", err)
		}
		k := ChunkKey{CX: msg.CX, CZ: msg.CZ}
		seen[k]++
		if k.CX < center.CX-r || k.CX > center.CX+r || k.CZ < center.CZ-r || k.CZ > center.CZ+r {
			t.Fatalf("chunk %+v outside stream radius of %+v", k, center)
		}
	}
	if len(seen) != wantChunks {
		t.Fatalf("streamed %d distinct chunks, want %d", len(seen), wantChunks)
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("chunk %+v sent %d times", k, n)
		}
	}
}

func TestMoveStreamsOnlyNewChunks(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	start := [3]float64{s.Pos.X(), s.Pos.Y(), s.Pos.Z()}

	sendAction(w, s, protocol.ActionMsg{ActionID: "m1", Kind: protocol.ActMoveTo,
		Pos: [3]float64{start[0] + 16, start[1], start[2]}})
	envs := drain(t, out)
	findResult(t, envs, "m1")
	moved := countType(envs, protocol.TypeWorldChunk)
	if moved == 0 {
		t.Fatalf("crossing a chunk boundary streamed nothing")
	}
	r := w.cfg.StreamRadius
	if want := 2*r + 1; moved != want {
		t.Fatalf("streamed %d chunks after one-chunk move, want the new edge of %d", moved, want)
	}

	// Moving back re-enters chunks this connection already has.
	sendAction(w, s, protocol.ActionMsg{ActionID: "m2", Kind: protocol.ActMoveTo, Pos: start})
	envs = drain(t, out)
	findResult(t, envs, "m2")
	if n := countType(envs, protocol.TypeWorldChunk); n != 0 {
		t.Fatalf("moving back resent %d chunks", n)
	}
}

func TestActionsRequireJoin(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")

	sendAction(w, s, protocol.ActionMsg{ActionID: "a1", Kind: protocol.ActMine, Block: [3]int{0, 1, 0}})
	res := findResult(t, drain(t, out), "a1")
	if res.OK || res.Error == nil || res.Error.Code != protocol.ErrUnauthorized {
		t.Fatalf("pre-join action: got %+v", res)
	}
}

func TestMineValidationAndEffects(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	other, otherOut := authSession(t, w, "Birch")
	joinSession(t, w, other)
	drain(t, out)
	drain(t, otherOut)

	px, _, pz := s.blockPos()
	surface := w.chunks.SurfaceY(px, pz)
	target := [3]int{px, surface, pz}
	surfaceBlock := w.chunks.Block(px, surface, pz)
	if !blocks.IsMineable(surfaceBlock) {
		t.Fatalf("test terrain: surface block %d not mineable", surfaceBlock)
	}

	sendAction(w, s, protocol.ActionMsg{ActionID: "mine1", Kind: protocol.ActMine, Block: target})
	res := findResult(t, drain(t, out), "mine1")
	if !res.OK {
		t.Fatalf("mine failed: %+v", res.Error)
	}
	if drop, _ := res.Effects["drop"].(string); drop == "" {
		t.Fatalf("mine result carries no drop")
	}
	if got := w.chunks.Block(px, surface, pz); got != blocks.Air {
		t.Fatalf("mined block still %d", got)
	}
	if s.Profile.BlocksMined != 1 {
		t.Fatalf("BlocksMined = %d", s.Profile.BlocksMined)
	}
	if countType(drain(t, otherOut), protocol.TypeBlockUpdate) != 1 {
		t.Fatalf("peer did not receive BLOCK_UPDATE")
	}

	// Mining the now-empty cell is not a valid target.
	sendAction(w, s, protocol.ActionMsg{ActionID: "mine2", Kind: protocol.ActMine, Block: target})
	if res := findResult(t, drain(t, out), "mine2"); res.OK || res.Error.Code != protocol.ErrInvalidArgument {
		t.Fatalf("mining air: got %+v", res)
	}

	// Bedrock is permanent.
	sendAction(w, s, protocol.ActionMsg{ActionID: "mine3", Kind: protocol.ActMine, Block: [3]int{px, 0, pz}})
	if res := findResult(t, drain(t, out), "mine3"); res.OK || res.Error.Code != protocol.ErrInvalidArgument {
		t.Fatalf("mining bedrock: got %+v", res)
	}
}

func TestPlaceValidation(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	px, _, pz := s.blockPos()
	surface := w.chunks.SurfaceY(px, pz)
	above := [3]int{px + 1, surface + 3, pz}

	sendAction(w, s, protocol.ActionMsg{ActionID: "p1", Kind: protocol.ActPlace, Block: above, BlockID: blocks.Plank})
	if res := findResult(t, drain(t, out), "p1"); !res.OK {
		t.Fatalf("place into air failed: %+v", res.Error)
	}
	if got := w.chunks.Block(above[0], above[1], above[2]); got != blocks.Plank {
		t.Fatalf("placed cell is %d", got)
	}
	if s.Profile.BlocksPlaced != 1 {
		t.Fatalf("BlocksPlaced = %d", s.Profile.BlocksPlaced)
	}

	// Already occupied.
	sendAction(w, s, protocol.ActionMsg{ActionID: "p2", Kind: protocol.ActPlace, Block: above, BlockID: blocks.Stone})
	if res := findResult(t, drain(t, out), "p2"); res.OK || res.Error.Code != protocol.ErrConflict {
		t.Fatalf("place into solid: got %+v", res)
	}

	// Water is not placeable.
	sendAction(w, s, protocol.ActionMsg{ActionID: "p3", Kind: protocol.ActPlace,
		Block: [3]int{px + 2, surface + 3, pz}, BlockID: blocks.Water})
	if res := findResult(t, drain(t, out), "p3"); res.OK || res.Error.Code != protocol.ErrInvalidArgument {
		t.Fatalf("place water: got %+v", res)
	}
}

func TestSpeakRateLimit(t *testing.T) {
	w := newTestWorld(t)
	w.cfg.SpeakMax = 2
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	for i, id := range []string{"c1", "c2"} {
		sendAction(w, s, protocol.ActionMsg{ActionID: id, Kind: protocol.ActSpeak, Text: "hello"})
		if res := findResult(t, drain(t, out), id); !res.OK {
			t.Fatalf("speak %d rejected: %+v", i, res.Error)
		}
	}
	sendAction(w, s, protocol.ActionMsg{ActionID: "c3", Kind: protocol.ActSpeak, Text: "hello"})
	if res := findResult(t, drain(t, out), "c3"); res.OK || res.Error.Code != protocol.ErrRateLimited {
		t.Fatalf("third speak in window: got %+v", res)
	}
	if s.Profile.ChatCount != 2 {
		t.Fatalf("ChatCount = %d", s.Profile.ChatCount)
	}

	// A new window resets the budget.
	w.tick.Store(w.tick.Load() + uint64(w.cfg.SpeakWindowTicks))
	sendAction(w, s, protocol.ActionMsg{ActionID: "c4", Kind: protocol.ActSpeak, Text: "hello"})
	if res := findResult(t, drain(t, out), "c4"); !res.OK {
		t.Fatalf("speak after window: %+v", res.Error)
	}
}

func TestChatLengthCap(t *testing.T) {
	w := newTestWorld(t)
	w.cfg.ChatMaxLen = 8
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	sendAction(w, s, protocol.ActionMsg{ActionID: "c1", Kind: protocol.ActSpeak, Text: "waaaaaaaaay too long"})
	if res := findResult(t, drain(t, out), "c1"); res.OK || res.Error.Code != protocol.ErrInvalidArgument {
		t.Fatalf("over-long chat: got %+v", res)
	}
}

func TestRejectedSpeakKeepsRateBudget(t *testing.T) {
	w := newTestWorld(t)
	w.cfg.SpeakMax = 1
	w.cfg.ChatMaxLen = 8
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	// Invalid messages must not consume the window slot.
	for _, id := range []string{"c1", "c2", "c3"} {
		sendAction(w, s, protocol.ActionMsg{ActionID: id, Kind: protocol.ActSpeak, Text: "waaaaaaaaay too long"})
		if res := findResult(t, drain(t, out), id); res.OK || res.Error.Code != protocol.ErrInvalidArgument {
			t.Fatalf("over-long speak %s: got %+v", id, res)
		}
	}
	sendAction(w, s, protocol.ActionMsg{ActionID: "c4", Kind: protocol.ActSpeak, Text: "hi"})
	if res := findResult(t, drain(t, out), "c4"); !res.OK {
		t.Fatalf("valid speak after rejected ones: %+v", res.Error)
	}
	if s.Profile.ChatCount != 1 {
		t.Fatalf("ChatCount = %d", s.Profile.ChatCount)
	}
}

func TestAttackMob(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	sendAction(w, s, protocol.ActionMsg{ActionID: "a0", Kind: protocol.ActAttackMob, TargetID: "ghost"})
	if res := findResult(t, drain(t, out), "a0"); res.OK || res.Error.Code != protocol.ErrNotFound {
		t.Fatalf("unknown target: got %+v", res)
	}

	def := &creatureDefs[0] // RABBIT, 4 hp
	c := &Creature{ID: "c-test", Def: def, Pos: s.Pos.Add(mgl64Vec(2, 0, 0)), HP: def.MaxHP}
	w.creatures[c.ID] = c

	far := &Creature{ID: "c-far", Def: def, Pos: s.Pos.Add(mgl64Vec(50, 0, 0)), HP: def.MaxHP}
	w.creatures[far.ID] = far
	sendAction(w, s, protocol.ActionMsg{ActionID: "a1", Kind: protocol.ActAttackMob, TargetID: far.ID})
	if res := findResult(t, drain(t, out), "a1"); res.OK || res.Error.Code != protocol.ErrInvalidArgument {
		t.Fatalf("out of reach: got %+v", res)
	}

	sendAction(w, s, protocol.ActionMsg{ActionID: "a2", Kind: protocol.ActAttackMob, TargetID: c.ID})
	res := findResult(t, drain(t, out), "a2")
	if !res.OK {
		t.Fatalf("in-reach attack failed: %+v", res.Error)
	}
	if res.Effects["killed"] != true {
		t.Fatalf("4 hp rabbit should die to one %d damage hit: %+v", w.cfg.AttackDamage, res.Effects)
	}
	if _, alive := w.creatures[c.ID]; alive {
		t.Fatalf("killed creature still present")
	}
	if s.Profile.Kills != 1 {
		t.Fatalf("Kills = %d", s.Profile.Kills)
	}

	// Swing cooldown applies even against a fresh target.
	sendAction(w, s, protocol.ActionMsg{ActionID: "a3", Kind: protocol.ActAttackMob, TargetID: far.ID})
	if res := findResult(t, drain(t, out), "a3"); res.OK || res.Error.Code != protocol.ErrRateLimited {
		t.Fatalf("attack during cooldown: got %+v", res)
	}
}

func TestPerceive(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	other, otherOut := authSession(t, w, "Birch")
	joinSession(t, w, other)
	other.Pos = s.Pos.Add(mgl64Vec(3, 0, 0))
	drain(t, out)
	drain(t, otherOut)

	def := &creatureDefs[0]
	w.creatures["c1"] = &Creature{ID: "c1", Def: def, Pos: s.Pos.Add(mgl64Vec(0, 0, 4)), HP: def.MaxHP}

	sendAction(w, s, protocol.ActionMsg{ActionID: "see", Kind: protocol.ActPerceive})
	res := findResult(t, drain(t, out), "see")
	if !res.OK {
		t.Fatalf("perceive failed: %+v", res.Error)
	}

	raw, _ := json.Marshal(res.Effects["perception"])
	var p protocol.Perception
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("perception payload: %v", err)
	}
	if len(p.Blocks) == 0 {
		t.Fatalf("perception saw no blocks")
	}
	if w.cfg.PerceiveMaxBlocks > 0 && len(p.Blocks) > w.cfg.PerceiveMaxBlocks {
		t.Fatalf("perception block cap not applied: %d", len(p.Blocks))
	}
	if len(p.Players) != 1 || p.Players[0].Name != "Birch" {
		t.Fatalf("perceived players: %+v", p.Players)
	}
	if len(p.Creatures) != 1 || p.Creatures[0].CreatureID != "c1" {
		t.Fatalf("perceived creatures: %+v", p.Creatures)
	}
	if p.Biome == "" || p.Phase == "" {
		t.Fatalf("perception missing ambient fields: %+v", p)
	}
}

func TestLeaveBroadcastsAndForgets(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	other, otherOut := authSession(t, w, "Birch")
	joinSession(t, w, other)
	drain(t, out)
	drain(t, otherOut)

	w.handleLeave(other.ID)
	if _, ok := w.sessions[other.ID]; ok {
		t.Fatalf("left session still tracked")
	}
	if countType(drain(t, out), protocol.TypePlayerLeave) != 1 {
		t.Fatalf("peer did not receive PLAYER_LEAVE")
	}
}

func TestAuditRing(t *testing.T) {
	w := newTestWorld(t)
	w.auditRing = make([]AuditRecord, 0, 4)
	for i := 0; i < 10; i++ {
		w.appendAudit("MINE", "actor", map[string]any{"i": i})
	}
	tail := w.AuditTail(4)
	if len(tail) != 4 {
		t.Fatalf("tail length = %d", len(tail))
	}
	if got := tail[3].Detail["i"]; got != 9 {
		t.Fatalf("newest record = %v", got)
	}
	if got := tail[0].Detail["i"]; got != 6 {
		t.Fatalf("oldest kept record = %v", got)
	}
}
