package world

import (
	"encoding/json"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/blocks"
	"blockhaven/internal/sim/terrain"
)

// handleInbound routes one post-auth client envelope. Unknown or malformed
// messages are dropped: a bad frame never tears down the connection and
// never reaches world state.
func (w *World) handleInbound(in InboundEnvelope) {
	sess := w.sessions[in.SessionID]
	if sess == nil || sess.State == StateDisconnected {
		return
	}
	env := in.Env
	switch env.Type {
	case protocol.TypeJoin:
		w.handleJoinWorld(sess, env)
	case protocol.TypeAction:
		var act protocol.ActionMsg
		if err := json.Unmarshal(env.Payload, &act); err != nil {
			return
		}
		w.handleAction(sess, act)
	case protocol.TypeChat:
		var chat protocol.ChatMsg
		if err := json.Unmarshal(env.Payload, &chat); err != nil {
			return
		}
		w.handleChat(sess, chat.Text)
	}
}

func (w *World) result(s *Session, actionID string, effects map[string]any) {
	w.sendTo(s, protocol.MustEncode(protocol.TypeActionResult, actionID, protocol.ActionResultMsg{
		ActionID: actionID,
		OK:       true,
		Effects:  effects,
	}))
}

func (w *World) fail(s *Session, actionID, code, msg string) {
	w.sendTo(s, protocol.MustEncode(protocol.TypeActionResult, actionID, protocol.ActionResultMsg{
		ActionID: actionID,
		OK:       false,
		Error:    &protocol.ErrorBody{Code: code, Message: msg},
	}))
}

// handleAction validates and applies one world action. Validation always
// precedes mutation, and a mutation plus its broadcast are one unit: no
// handler returns between the two.
func (w *World) handleAction(s *Session, act protocol.ActionMsg) {
	if s.State != StateJoined {
		code := protocol.ErrUnauthorized
		if s.State == StateConnected {
			code = protocol.ErrUnauthenticated
		}
		w.fail(s, act.ActionID, code, "not in world")
		return
	}

	switch act.Kind {
	case protocol.ActMoveTo:
		w.actMoveTo(s, act)
	case protocol.ActMine:
		w.actMine(s, act)
	case protocol.ActPlace:
		w.actPlace(s, act)
	case protocol.ActEmote:
		w.actEmote(s, act)
	case protocol.ActSpeak:
		w.actSpeak(s, act)
	case protocol.ActAttackMob:
		w.actAttackMob(s, act)
	case protocol.ActPerceive:
		w.actPerceive(s, act)
	default:
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "unknown action kind")
	}
}

// actMoveTo overwrites position and orientation. Movement is trusted
// input; the server's job here is chunk streaming and fan-out, not physics.
func (w *World) actMoveTo(s *Session, act protocol.ActionMsg) {
	if s.Dead {
		w.fail(s, act.ActionID, protocol.ErrConflict, "dead")
		return
	}
	prevChunk := s.chunkCoord()
	s.Pos = mgl64.Vec3{act.Pos[0], act.Pos[1], act.Pos[2]}
	s.Yaw = act.Yaw
	s.Pitch = act.Pitch

	w.broadcastExcept(s.ID, protocol.MustEncode(protocol.TypePlayerMove, "", protocol.PlayerMoveMsg{
		PlayerID: s.ID,
		Pos:      act.Pos,
		Yaw:      act.Yaw,
		Pitch:    act.Pitch,
	}))
	w.streamChunks(s)
	if s.chunkCoord() != prevChunk {
		w.appendAudit("MOVE_CHUNK", s.ID, map[string]any{"cx": s.lastChunk.CX, "cz": s.lastChunk.CZ})
	}
	w.result(s, act.ActionID, nil)
}

func (w *World) actMine(s *Session, act protocol.ActionMsg) {
	if s.Dead {
		w.fail(s, act.ActionID, protocol.ErrConflict, "dead")
		return
	}
	x, y, z := act.Block[0], act.Block[1], act.Block[2]
	cur := w.chunks.Block(x, y, z)
	if cur == blocks.Air {
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "nothing to mine")
		return
	}
	if !blocks.IsMineable(cur) {
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "block is not mineable")
		return
	}

	drop := blocks.Get(cur).Drop
	w.chunks.SetBlock(x, y, z, blocks.Air)
	s.addToHotbar(drop)
	s.Profile.BlocksMined++

	w.broadcast(protocol.MustEncode(protocol.TypeBlockUpdate, "", protocol.BlockUpdateMsg{
		Pos:     act.Block,
		BlockID: blocks.Air,
		ByID:    s.ID,
	}))
	w.appendAudit("MINE", s.ID, map[string]any{"pos": act.Block, "block": blocks.Get(cur).Name})
	w.result(s, act.ActionID, map[string]any{"drop": blocks.Get(drop).Name})
}

func (w *World) actPlace(s *Session, act protocol.ActionMsg) {
	if s.Dead {
		w.fail(s, act.ActionID, protocol.ErrConflict, "dead")
		return
	}
	if !blocks.IsPlaceable(act.BlockID) {
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "block type is not placeable")
		return
	}
	x, y, z := act.Block[0], act.Block[1], act.Block[2]
	if y < 0 || y >= terrain.ChunkH {
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "out of vertical range")
		return
	}
	if blocks.IsSolid(w.chunks.Block(x, y, z)) {
		w.fail(s, act.ActionID, protocol.ErrConflict, "target is occupied")
		return
	}

	w.chunks.SetBlock(x, y, z, act.BlockID)
	s.Profile.BlocksPlaced++

	w.broadcast(protocol.MustEncode(protocol.TypeBlockUpdate, "", protocol.BlockUpdateMsg{
		Pos:     act.Block,
		BlockID: act.BlockID,
		ByID:    s.ID,
	}))
	w.appendAudit("PLACE", s.ID, map[string]any{"pos": act.Block, "block": blocks.Get(act.BlockID).Name})
	w.result(s, act.ActionID, nil)
}

func (w *World) actEmote(s *Session, act protocol.ActionMsg) {
	if act.Text == "" || len(act.Text) > 64 {
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "emote must be 1-64 characters")
		return
	}
	w.broadcast(protocol.MustEncode(protocol.TypeWorldEvent, "", protocol.WorldEventMsg{
		Kind:     "EMOTE",
		PlayerID: s.ID,
		Text:     act.Text,
	}))
	w.appendAudit("EMOTE", s.ID, map[string]any{"text": act.Text})
	w.result(s, act.ActionID, nil)
}

func (w *World) actSpeak(s *Session, act protocol.ActionMsg) {
	if act.Text == "" || len(act.Text) > w.cfg.ChatMaxLen {
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "bad message length")
		return
	}
	// Rejected messages must not consume window slots, so the limiter
	// runs after validation.
	if !w.speakAllowed(s) {
		w.fail(s, act.ActionID, protocol.ErrRateLimited, "too many messages")
		return
	}
	w.deliverChat(s, act.Text)
	w.result(s, act.ActionID, nil)
}

// handleChat is the bare CHAT envelope (no action id to answer); failures
// are silent drops, matching the broadcast-only contract.
func (w *World) handleChat(s *Session, text string) {
	if s.State != StateJoined {
		return
	}
	if text == "" || len(text) > w.cfg.ChatMaxLen {
		return
	}
	if !w.speakAllowed(s) {
		return
	}
	w.deliverChat(s, text)
}

func (w *World) deliverChat(s *Session, text string) {
	s.Profile.ChatCount++
	w.broadcast(protocol.MustEncode(protocol.TypeChatMessage, "", protocol.ChatMessageMsg{
		PlayerID: s.ID,
		Name:     s.Name,
		Text:     text,
	}))
	w.appendAudit("CHAT", s.ID, map[string]any{"len": len(text)})
}

// speakAllowed applies a fixed-window rate limit per session.
func (w *World) speakAllowed(s *Session) bool {
	now := w.tick.Load()
	window := uint64(w.cfg.SpeakWindowTicks)
	if window == 0 || w.cfg.SpeakMax <= 0 {
		return true
	}
	if now-s.speakWindowStart >= window {
		s.speakWindowStart = now
		s.speakCount = 0
	}
	if s.speakCount >= w.cfg.SpeakMax {
		return false
	}
	s.speakCount++
	return true
}

func (w *World) actAttackMob(s *Session, act protocol.ActionMsg) {
	if s.Dead {
		w.fail(s, act.ActionID, protocol.ErrConflict, "dead")
		return
	}
	c := w.creatures[act.TargetID]
	if c == nil {
		w.fail(s, act.ActionID, protocol.ErrNotFound, "no such creature")
		return
	}
	if s.HitCooldown > 0 {
		w.fail(s, act.ActionID, protocol.ErrRateLimited, "swing on cooldown")
		return
	}
	if s.Pos.Sub(c.Pos).Len() > w.cfg.AttackReach {
		w.fail(s, act.ActionID, protocol.ErrInvalidArgument, "out of reach")
		return
	}

	s.HitCooldown = w.cfg.HitCooldownTicks
	c.HP -= w.cfg.AttackDamage
	killed := c.HP <= 0

	if killed {
		s.Profile.Kills++
		w.despawnCreature(c, "killed")
	} else {
		w.broadcast(protocol.MustEncode(protocol.TypeCreatureHurt, "", protocol.CreatureHurtMsg{
			CreatureID: c.ID,
			HP:         c.HP,
			ByID:       s.ID,
		}))
	}
	w.appendAudit("ATTACK_MOB", s.ID, map[string]any{"target": c.ID, "kind": c.Def.Kind, "killed": killed})
	w.result(s, act.ActionID, map[string]any{"killed": killed, "hp": c.HP})
}

// actPerceive is the one read-only bulk query: a capped non-air block scan
// around the actor plus nearby entities and ambient world state.
func (w *World) actPerceive(s *Session, act protocol.ActionMsg) {
	px, py, pz := s.blockPos()
	r := w.cfg.PerceiveRadius

	p := protocol.Perception{
		Blocks:    []protocol.PerceivedBlock{},
		Players:   []protocol.PerceivedPlayer{},
		Creatures: []protocol.PerceivedCreature{},
		Biome:     w.chunks.gen.BiomeAt(px, pz).Name,
		TimeOfDay: w.timeOfDay(),
		Phase:     w.phase(),
	}

scan:
	for dy := -r; dy <= r; dy++ {
		y := py + dy
		if y < 0 || y >= terrain.ChunkH {
			continue
		}
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				b := w.chunks.Block(px+dx, y, pz+dz)
				if b == blocks.Air {
					continue
				}
				if len(p.Blocks) >= w.cfg.PerceiveMaxBlocks {
					p.Truncated = true
					break scan
				}
				p.Blocks = append(p.Blocks, protocol.PerceivedBlock{
					Pos:     [3]int{px + dx, y, pz + dz},
					BlockID: b,
					Name:    blocks.Get(b).Name,
				})
			}
		}
	}

	for _, other := range w.sessions {
		if other.ID == s.ID || other.State != StateJoined {
			continue
		}
		if other.Pos.Sub(s.Pos).Len() > w.cfg.PerceiveEntityR {
			continue
		}
		p.Players = append(p.Players, protocol.PerceivedPlayer{
			PlayerID: other.ID,
			Name:     other.Name,
			Pos:      [3]float64{other.Pos.X(), other.Pos.Y(), other.Pos.Z()},
			HP:       other.HP,
		})
	}
	for _, c := range w.creatures {
		if c.Pos.Sub(s.Pos).Len() > w.cfg.PerceiveEntityR {
			continue
		}
		p.Creatures = append(p.Creatures, protocol.PerceivedCreature{
			CreatureID: c.ID,
			Kind:       c.Def.Kind,
			Pos:        [3]float64{c.Pos.X(), c.Pos.Y(), c.Pos.Z()},
			HP:         c.HP,
			Hostile:    c.Def.Hostile,
		})
	}

	w.result(s, act.ActionID, map[string]any{"perception": p})
}

// hurtPlayer applies creature damage to a joined session; the respawn is a
// scheduled event so a disconnect during the delay cancels it cleanly.
func (w *World) hurtPlayer(s *Session, dmg int, byID string) {
	if s.Dead {
		return
	}
	s.HP -= dmg
	if s.HP > 0 {
		w.broadcast(protocol.MustEncode(protocol.TypePlayerHurt, "", protocol.PlayerHurtMsg{
			PlayerID: s.ID,
			HP:       s.HP,
			ByID:     byID,
		}))
		return
	}
	s.HP = 0
	s.Dead = true
	w.broadcast(protocol.MustEncode(protocol.TypePlayerDeath, "", protocol.PlayerDeathMsg{
		PlayerID: s.ID,
		ByID:     byID,
	}))
	w.appendAudit("PLAYER_DEATH", s.ID, map[string]any{"by": byID})
	w.scheduleRespawn(s.ID)
}

func (s *Session) addToHotbar(id uint8) {
	if id == blocks.Air {
		return
	}
	for i := range s.Hotbar {
		if s.Hotbar[i] == blocks.Air {
			s.Hotbar[i] = id
			return
		}
	}
	// Hotbar full: the drop is recorded in stats but not carried.
}

func chebyshev(a, b mgl64.Vec3) float64 {
	return math.Max(math.Abs(a.X()-b.X()), math.Abs(a.Z()-b.Z()))
}
