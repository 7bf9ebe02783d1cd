// Package blocks holds the static block-type table. It is fixed at compile
// time; world generation, action validation, and clients all share these ids.
package blocks

// Capability flags.
const (
	FlagSolid uint8 = 1 << iota
	FlagTransparent
	FlagLiquid
	FlagEmissive
	FlagMineable
	FlagPlaceable
)

// Block ids. Chunk arrays store these directly, so the numbering is part of
// the persisted format and must never be reordered.
const (
	Air uint8 = iota
	Bedrock
	Stone
	Dirt
	Grass
	Sand
	Snow
	Gravel
	Water
	Log
	Leaves
	Plank
	CoalOre
	IronOre
	CopperOre
	CrystalOre
	Glowstone
	Cactus

	blockCount
)

type Definition struct {
	ID    uint8
	Name  string
	Color string // hex RGB, shared with client rendering
	Flags uint8
	Drop  uint8 // block id credited to the miner; Air means no drop
}

var defs = [blockCount]Definition{
	{Air, "air", "#000000", FlagTransparent, Air},
	{Bedrock, "bedrock", "#2b2b2b", FlagSolid, Air},
	{Stone, "stone", "#8a8a8a", FlagSolid | FlagMineable | FlagPlaceable, Stone},
	{Dirt, "dirt", "#7a5230", FlagSolid | FlagMineable | FlagPlaceable, Dirt},
	{Grass, "grass", "#4caf50", FlagSolid | FlagMineable, Dirt},
	{Sand, "sand", "#e0d6a5", FlagSolid | FlagMineable | FlagPlaceable, Sand},
	{Snow, "snow", "#f5f5f5", FlagSolid | FlagMineable, Dirt},
	{Gravel, "gravel", "#9e9389", FlagSolid | FlagMineable | FlagPlaceable, Gravel},
	{Water, "water", "#3d6edb", FlagLiquid | FlagTransparent, Air},
	{Log, "log", "#6b4423", FlagSolid | FlagMineable | FlagPlaceable, Log},
	{Leaves, "leaves", "#2e7d32", FlagSolid | FlagTransparent | FlagMineable, Air},
	{Plank, "plank", "#b8864e", FlagSolid | FlagMineable | FlagPlaceable, Plank},
	{CoalOre, "coal_ore", "#4e4e4e", FlagSolid | FlagMineable, CoalOre},
	{IronOre, "iron_ore", "#bfa078", FlagSolid | FlagMineable, IronOre},
	{CopperOre, "copper_ore", "#c97f50", FlagSolid | FlagMineable, CopperOre},
	{CrystalOre, "crystal_ore", "#7fe3e0", FlagSolid | FlagMineable, CrystalOre},
	{Glowstone, "glowstone", "#ffd45e", FlagSolid | FlagEmissive | FlagMineable | FlagPlaceable, Glowstone},
	{Cactus, "cactus", "#3f7d3b", FlagSolid | FlagMineable, Cactus},
}

var byName = func() map[string]uint8 {
	m := make(map[string]uint8, len(defs))
	for _, d := range defs {
		m[d.Name] = d.ID
	}
	return m
}()

// Get returns the definition for id. Unknown ids map to air so that a
// corrupted chunk byte degrades to empty space rather than a panic.
func Get(id uint8) Definition {
	if int(id) >= len(defs) {
		return defs[Air]
	}
	return defs[id]
}

func ByName(name string) (Definition, bool) {
	id, ok := byName[name]
	if !ok {
		return Definition{}, false
	}
	return defs[id], true
}

func Count() int { return len(defs) }

func IsSolid(id uint8) bool     { return Get(id).Flags&FlagSolid != 0 }
func IsLiquid(id uint8) bool    { return Get(id).Flags&FlagLiquid != 0 }
func IsMineable(id uint8) bool  { return Get(id).Flags&FlagMineable != 0 }
func IsPlaceable(id uint8) bool { return Get(id).Flags&FlagPlaceable != 0 }
func IsEmissive(id uint8) bool  { return Get(id).Flags&FlagEmissive != 0 }
