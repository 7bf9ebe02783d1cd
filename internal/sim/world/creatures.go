package world

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/blocks"
	"blockhaven/internal/sim/terrain"
)

// CreatureDef is the static per-kind tuning. Habitat names are biome names
// from the terrain decision table; an empty habitat set means anywhere.
type CreatureDef struct {
	Kind        string
	MaxHP       int
	Speed       float64 // blocks per tick
	Hostile     bool
	NightOnly   bool
	AggroRadius float64
	MeleeDamage int
	Habitat     []string
}

var creatureDefs = []CreatureDef{
	{Kind: "RABBIT", MaxHP: 4, Speed: 0.12, Habitat: []string{"PLAINS", "FOREST", "SAVANNA"}},
	{Kind: "DEER", MaxHP: 10, Speed: 0.10, Habitat: []string{"FOREST", "TAIGA", "PLAINS"}},
	{Kind: "WOLF", MaxHP: 14, Speed: 0.16, Hostile: true, AggroRadius: 12, MeleeDamage: 3,
		Habitat: []string{"TAIGA", "TUNDRA", "FOREST"}},
	{Kind: "SHADE", MaxHP: 16, Speed: 0.18, Hostile: true, NightOnly: true, AggroRadius: 16, MeleeDamage: 4},
}

// Habitat strings are hand-typed; catch a typo at startup instead of
// silently never spawning the kind.
func init() {
	known := terrain.BiomeNames()
	for _, d := range creatureDefs {
		for _, h := range d.Habitat {
			if !contains(known, h) {
				panic("unknown habitat biome " + h + " for creature " + d.Kind)
			}
		}
	}
}

type Creature struct {
	ID  string
	Def *CreatureDef
	Pos mgl64.Vec3
	HP  int

	wanderTicks  int
	wanderDir    mgl64.Vec3
	attackTicks  int
	lastBcastPos mgl64.Vec3
}

// tickCreatures runs spawning, AI movement, melee, and the two automatic
// despawn rules. It owns every creature mutation, so all creature
// broadcasts originate here or in the attack handler.
func (w *World) tickCreatures() {
	tick := w.tick.Load()
	// Night-only creatures live through dusk and night; dawn evicts them.
	p := w.phase()
	nocturnal := p == "night" || p == "dusk"

	if w.cfg.Creatures.SpawnEveryTicks > 0 && tick%uint64(w.cfg.Creatures.SpawnEveryTicks) == 0 {
		w.trySpawnCreature(nocturnal)
	}

	for _, c := range w.creatures {
		if c.Def.NightOnly && !nocturnal {
			w.despawnCreature(c, "dawn")
			continue
		}
		if w.farFromEveryone(c) {
			w.despawnCreature(c, "distance")
			continue
		}
		w.moveCreature(c)
	}
}

func (w *World) farFromEveryone(c *Creature) bool {
	limit := float64(w.cfg.Creatures.DespawnR)
	any := false
	for _, s := range w.sessions {
		if s.State != StateJoined {
			continue
		}
		any = true
		if chebyshev(c.Pos, s.Pos) <= limit {
			return false
		}
	}
	return any
}

// trySpawnCreature rolls one spawn attempt: a random joined session as the
// anchor, a random point in the spawn annulus, and a kind whose habitat
// matches the column's biome. A failed roll is just skipped.
func (w *World) trySpawnCreature(nocturnal bool) {
	if len(w.creatures) >= w.cfg.Creatures.Cap {
		return
	}
	anchor := w.randomJoined()
	if anchor == nil {
		return
	}

	minR := float64(w.cfg.Creatures.SpawnMinR)
	maxR := float64(w.cfg.Creatures.SpawnMaxR)
	ang := w.rng.Float64() * 2 * math.Pi
	dist := minR + w.rng.Float64()*(maxR-minR)
	x := int(math.Floor(anchor.Pos.X() + math.Cos(ang)*dist))
	z := int(math.Floor(anchor.Pos.Z() + math.Sin(ang)*dist))

	biome := w.chunks.gen.BiomeAt(x, z).Name
	def := pickCreature(w.rng, biome, nocturnal)
	if def == nil {
		return
	}

	y := w.chunks.SurfaceY(x, z) + 1
	if y <= terrain.SeaLevel {
		return
	}
	if blocks.IsSolid(w.chunks.Block(x, y, z)) {
		return
	}

	c := &Creature{
		ID:  uuid.NewString(),
		Def: def,
		Pos: mgl64.Vec3{float64(x) + 0.5, float64(y), float64(z) + 0.5},
		HP:  def.MaxHP,
	}
	c.lastBcastPos = c.Pos
	w.creatures[c.ID] = c

	w.broadcast(protocol.MustEncode(protocol.TypeCreatureSpawn, "", protocol.CreatureSpawnMsg{
		CreatureID: c.ID,
		Kind:       def.Kind,
		Pos:        [3]float64{c.Pos.X(), c.Pos.Y(), c.Pos.Z()},
		HP:         c.HP,
	}))
}

func pickCreature(rng *rand.Rand, biome string, nocturnal bool) *CreatureDef {
	eligible := make([]*CreatureDef, 0, len(creatureDefs))
	for i := range creatureDefs {
		d := &creatureDefs[i]
		if d.NightOnly && !nocturnal {
			continue
		}
		if len(d.Habitat) > 0 && !contains(d.Habitat, biome) {
			continue
		}
		eligible = append(eligible, d)
	}
	if len(eligible) == 0 {
		return nil
	}
	return eligible[rng.Intn(len(eligible))]
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func (w *World) randomJoined() *Session {
	joined := make([]*Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		if s.State == StateJoined {
			joined = append(joined, s)
		}
	}
	if len(joined) == 0 {
		return nil
	}
	return joined[w.rng.Intn(len(joined))]
}

// moveCreature advances one creature a tick. Hostiles chase the nearest
// live player inside their aggro radius and bite on contact; everything
// else wanders on a timer. Moves snap to the surface so creatures never
// burrow or float.
func (w *World) moveCreature(c *Creature) {
	if c.attackTicks > 0 {
		c.attackTicks--
	}

	var target *Session
	if c.Def.Hostile {
		best := c.Def.AggroRadius
		for _, s := range w.sessions {
			if s.State != StateJoined || s.Dead {
				continue
			}
			if d := s.Pos.Sub(c.Pos).Len(); d <= best {
				best = d
				target = s
			}
		}
	}

	var dir mgl64.Vec3
	if target != nil {
		to := target.Pos.Sub(c.Pos)
		if to.Len() <= 1.5 {
			if c.attackTicks == 0 {
				c.attackTicks = w.cfg.HitCooldownTicks
				w.hurtPlayer(target, c.Def.MeleeDamage, c.ID)
			}
			return
		}
		horiz := mgl64.Vec3{to.X(), 0, to.Z()}
		if horiz.Len() < 1e-9 {
			// Target directly above or below; normalizing a zero vector
			// would produce NaN coordinates.
			return
		}
		dir = horiz.Normalize()
	} else {
		if c.wanderTicks <= 0 {
			c.wanderTicks = 40 + w.rng.Intn(80)
			if w.rng.Intn(3) == 0 {
				c.wanderDir = mgl64.Vec3{}
			} else {
				a := w.rng.Float64() * 2 * math.Pi
				c.wanderDir = mgl64.Vec3{math.Cos(a), 0, math.Sin(a)}
			}
		}
		c.wanderTicks--
		dir = c.wanderDir
	}
	if dir.Len() == 0 {
		return
	}

	next := c.Pos.Add(dir.Mul(c.Def.Speed))
	nx, nz := int(math.Floor(next.X())), int(math.Floor(next.Z()))
	ny := w.chunks.SurfaceY(nx, nz) + 1
	if math.Abs(float64(ny)-c.Pos.Y()) > 2 {
		c.wanderTicks = 0 // cliff; repick direction next tick
		return
	}
	c.Pos = mgl64.Vec3{next.X(), float64(ny), next.Z()}

	if c.Pos.Sub(c.lastBcastPos).Len() >= 0.25 {
		c.lastBcastPos = c.Pos
		w.broadcast(protocol.MustEncode(protocol.TypeCreatureMove, "", protocol.CreatureMoveMsg{
			CreatureID: c.ID,
			Pos:        [3]float64{c.Pos.X(), c.Pos.Y(), c.Pos.Z()},
		}))
	}
}

func (w *World) despawnCreature(c *Creature, reason string) {
	delete(w.creatures, c.ID)
	w.broadcast(protocol.MustEncode(protocol.TypeCreatureDespawn, "", protocol.CreatureDespawnMsg{
		CreatureID: c.ID,
		Reason:     reason,
	}))
}
