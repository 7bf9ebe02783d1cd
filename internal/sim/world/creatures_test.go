package world

import (
	"math"
	"testing"

	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/terrain"
)

func defByKind(t *testing.T, kind string) *CreatureDef {
	t.Helper()
	for i := range creatureDefs {
		if creatureDefs[i].Kind == kind {
			return &creatureDefs[i]
		}
	}
	t.Fatalf("no creature kind %s", kind)
	return nil
}

func flatPairNear(t *testing.T, w *World, px, pz, gap int) (int, int) {
	t.Helper()
	// A strip of gap+1 columns at one surface height, so a ground-snapped
	// chase is not interrupted by a cliff.
	for dx := 0; dx < 64; dx++ {
		for dz := 0; dz < 64; dz++ {
			x, z := px+dx, pz+dz
			h := w.chunks.SurfaceY(x, z)
			flat := true
			for i := 1; i <= gap; i++ {
				if w.chunks.SurfaceY(x+i, z) != h {
					flat = false
					break
				}
			}
			if flat {
				return x, z
			}
		}
	}
	t.Skip("no flat ground near spawn")
	return 0, 0
}

func TestHostileCreatureChasesPlayer(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	wolf := defByKind(t, "WOLF")
	x, z := flatPairNear(t, w, 0, 0, 5)
	y := float64(w.chunks.SurfaceY(x, z) + 1)

	s.Pos = mgl64Vec(float64(x)+0.5, y, float64(z)+0.5)
	c := &Creature{ID: "wolf1", Def: wolf, Pos: mgl64Vec(float64(x+5)+0.5, y, float64(z)+0.5), HP: wolf.MaxHP}
	c.lastBcastPos = c.Pos
	w.creatures[c.ID] = c

	before := c.Pos.Sub(s.Pos).Len()
	for i := 0; i < 5; i++ {
		w.moveCreature(c)
	}
	after := c.Pos.Sub(s.Pos).Len()
	if after >= before {
		t.Fatalf("hostile did not close distance: %.2f -> %.2f", before, after)
	}
}

func TestHostileBitesInMeleeRange(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	wolf := defByKind(t, "WOLF")
	c := &Creature{ID: "wolf1", Def: wolf, Pos: s.Pos.Add(mgl64Vec(1, 0, 0)), HP: wolf.MaxHP}
	w.creatures[c.ID] = c

	hpBefore := s.HP
	w.moveCreature(c)
	if s.HP != hpBefore-wolf.MeleeDamage {
		t.Fatalf("hp %d -> %d, want a %d damage bite", hpBefore, s.HP, wolf.MeleeDamage)
	}
	if countType(drain(t, out), protocol.TypePlayerHurt) != 1 {
		t.Fatalf("no PLAYER_HURT broadcast")
	}

	// Bite cooldown: the next tick in range does nothing.
	hpBefore = s.HP
	w.moveCreature(c)
	if s.HP != hpBefore {
		t.Fatalf("bite ignored the cooldown")
	}
}

func TestHostileIgnoresTargetDirectlyOverhead(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	wolf := defByKind(t, "WOLF")
	c := &Creature{ID: "wolf1", Def: wolf, Pos: s.Pos, HP: wolf.MaxHP}
	c.lastBcastPos = c.Pos
	w.creatures[c.ID] = c

	// Hovering straight up: zero horizontal delta, out of melee reach.
	s.Pos = c.Pos.Add(mgl64Vec(0, 5, 0))

	loadedBefore := w.chunks.Loaded()
	posBefore := c.Pos
	for i := 0; i < 3; i++ {
		w.moveCreature(c)
	}
	if math.IsNaN(c.Pos.X()) || math.IsNaN(c.Pos.Y()) || math.IsNaN(c.Pos.Z()) {
		t.Fatalf("creature position became NaN: %v", c.Pos)
	}
	if c.Pos != posBefore {
		t.Fatalf("creature moved with no horizontal chase direction: %v -> %v", posBefore, c.Pos)
	}
	if got := w.chunks.Loaded(); got != loadedBefore {
		t.Fatalf("chase loaded %d extra chunks", got-loadedBefore)
	}
}

func TestNightOnlyCreatureSurvivesDusk(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	w.tick.Store(uint64(float64(w.cfg.DayTicks) * 0.60))
	if w.phase() != "dusk" {
		t.Fatalf("expected dusk, got %s", w.phase())
	}
	shade := defByKind(t, "SHADE")
	w.creatures["sh1"] = &Creature{ID: "sh1", Def: shade, Pos: s.Pos, HP: shade.MaxHP}

	w.tickCreatures()
	if _, alive := w.creatures["sh1"]; !alive {
		t.Fatalf("night-only creature despawned at dusk")
	}
}

func TestCreatureHabitatsAreKnownBiomes(t *testing.T) {
	known := terrain.BiomeNames()
	for _, d := range creatureDefs {
		for _, h := range d.Habitat {
			if !contains(known, h) {
				t.Fatalf("creature %s lists unknown habitat %q", d.Kind, h)
			}
		}
	}
}

func TestNightOnlyCreatureDespawnsOutsideNight(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	if w.phase() == "night" {
		t.Fatalf("test assumes tick 0 is not night, got %s", w.phase())
	}
	shade := defByKind(t, "SHADE")
	w.creatures["sh1"] = &Creature{ID: "sh1", Def: shade, Pos: s.Pos, HP: shade.MaxHP}

	w.tickCreatures()
	if _, alive := w.creatures["sh1"]; alive {
		t.Fatalf("night-only creature survived daylight")
	}
	for _, env := range drain(t, out) {
		if env.Type != protocol.TypeCreatureDespawn {
			continue
		}
		var msg protocol.CreatureDespawnMsg
		mustUnmarshal(t, env.Payload, &msg)
		if msg.Reason != "dawn" {
			t.Fatalf("despawn reason = %q", msg.Reason)
		}
		return
	}
	t.Fatalf("no CREATURE_DESPAWN broadcast")
}

func TestFarCreatureDespawns(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	rabbit := defByKind(t, "RABBIT")
	far := s.Pos.Add(mgl64Vec(w.cfg.Creatures.DespawnR+10, 0, 0))
	w.creatures["r1"] = &Creature{ID: "r1", Def: rabbit, Pos: far, HP: rabbit.MaxHP}

	w.tickCreatures()
	if _, alive := w.creatures["r1"]; alive {
		t.Fatalf("creature beyond despawn radius survived")
	}
	for _, env := range drain(t, out) {
		if env.Type != protocol.TypeCreatureDespawn {
			continue
		}
		var msg protocol.CreatureDespawnMsg
		mustUnmarshal(t, env.Payload, &msg)
		if msg.Reason != "distance" {
			t.Fatalf("despawn reason = %q", msg.Reason)
		}
		return
	}
	t.Fatalf("no CREATURE_DESPAWN broadcast")
}

func TestSpawnRespectsCapAndAnnulus(t *testing.T) {
	w := newTestWorld(t)
	w.cfg.Creatures.SpawnEveryTicks = 1
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	for i := 0; i < 500; i++ {
		w.trySpawnCreature(false)
	}
	if len(w.creatures) > w.cfg.Creatures.Cap {
		t.Fatalf("spawned %d creatures over cap %d", len(w.creatures), w.cfg.Creatures.Cap)
	}
	for _, c := range w.creatures {
		d := chebyshev(c.Pos, s.Pos)
		if d > w.cfg.Creatures.SpawnMaxR+1 {
			t.Fatalf("creature %s spawned %.1f away, beyond the annulus", c.ID, d)
		}
		if c.Def.NightOnly {
			t.Fatalf("night-only creature spawned during the day")
		}
	}
}

func TestDeathSchedulesRespawn(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	w.hurtPlayer(s, s.HP, "wolf1")
	if !s.Dead || s.HP != 0 {
		t.Fatalf("lethal damage did not kill: dead=%v hp=%d", s.Dead, s.HP)
	}
	if countType(drain(t, out), protocol.TypePlayerDeath) != 1 {
		t.Fatalf("no PLAYER_DEATH broadcast")
	}
	if len(w.scheduled) != 1 {
		t.Fatalf("respawn not scheduled")
	}

	// While dead, a lethal follow-up is a no-op and world actions fail.
	w.hurtPlayer(s, 5, "wolf1")
	if s.HP != 0 {
		t.Fatalf("dead player took damage")
	}
	sendAction(w, s, protocol.ActionMsg{ActionID: "x1", Kind: protocol.ActMine, Block: [3]int{0, 1, 0}})
	if res := findResult(t, drain(t, out), "x1"); res.OK || res.Error.Code != protocol.ErrConflict {
		t.Fatalf("dead mine: got %+v", res)
	}

	// Before the delay elapses nothing fires.
	w.runScheduled()
	if !s.Dead {
		t.Fatalf("respawned early")
	}

	w.tick.Store(w.tick.Load() + uint64(w.cfg.RespawnDelayTicks))
	w.runScheduled()
	if s.Dead || s.HP != s.MaxHP {
		t.Fatalf("respawn did not restore: dead=%v hp=%d", s.Dead, s.HP)
	}
	if countType(drain(t, out), protocol.TypePlayerRespawn) != 1 {
		t.Fatalf("no PLAYER_RESPAWN broadcast")
	}
}

func TestRespawnSkipsDisconnected(t *testing.T) {
	w := newTestWorld(t)
	s, out := authSession(t, w, "Rowan")
	joinSession(t, w, s)
	drain(t, out)

	w.hurtPlayer(s, s.HP, "")
	w.handleLeave(s.ID)

	w.tick.Store(w.tick.Load() + uint64(w.cfg.RespawnDelayTicks))
	w.runScheduled() // must not panic or resurrect the gone session
	if len(w.sessions) != 0 {
		t.Fatalf("session resurrected after disconnect")
	}
}
