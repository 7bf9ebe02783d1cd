package terrain

import "blockhaven/internal/sim/blocks"

// Biome is a terrain archetype fixed by two climate scalars. The record
// carries everything column generation needs.
type Biome struct {
	Name        string
	Surface     uint8
	Subsoil     uint8
	HeightBase  float64 // surface height offset above sea level
	HeightVar   float64 // amplitude applied to the height field
	TreeDensity float64 // 0 disables trees
	TreeKind    uint8   // trunk block
}

var (
	biomeTundra  = Biome{Name: "TUNDRA", Surface: blocks.Snow, Subsoil: blocks.Dirt, HeightBase: 4, HeightVar: 6, TreeDensity: 0}
	biomeTaiga   = Biome{Name: "TAIGA", Surface: blocks.Snow, Subsoil: blocks.Dirt, HeightBase: 5, HeightVar: 10, TreeDensity: 0.06, TreeKind: blocks.Log}
	biomeDesert  = Biome{Name: "DESERT", Surface: blocks.Sand, Subsoil: blocks.Sand, HeightBase: 3, HeightVar: 5, TreeDensity: 0.008, TreeKind: blocks.Cactus}
	biomeJungle  = Biome{Name: "JUNGLE", Surface: blocks.Grass, Subsoil: blocks.Dirt, HeightBase: 5, HeightVar: 12, TreeDensity: 0.14, TreeKind: blocks.Log}
	biomeSavanna = Biome{Name: "SAVANNA", Surface: blocks.Grass, Subsoil: blocks.Dirt, HeightBase: 3, HeightVar: 4, TreeDensity: 0.015, TreeKind: blocks.Log}
	biomeForest  = Biome{Name: "FOREST", Surface: blocks.Grass, Subsoil: blocks.Dirt, HeightBase: 4, HeightVar: 8, TreeDensity: 0.1, TreeKind: blocks.Log}
	biomePlains  = Biome{Name: "PLAINS", Surface: blocks.Grass, Subsoil: blocks.Dirt, HeightBase: 3, HeightVar: 4, TreeDensity: 0.02, TreeKind: blocks.Log}
)

// SelectBiome maps (temperature, moisture) to a biome. The rule order is a
// deliberate tie-break: identical inputs must resolve identically forever,
// so new rows may only be appended below existing ones.
//
//	Temp\Moist   | Dry (<0.35)  | Medium        | Wet (>0.62)
//	Cold <0.32   | Tundra       | Tundra        | Taiga
//	Mild <0.62   | Savanna      | Plains        | Forest
//	Hot          | Desert       | Savanna       | Jungle
func SelectBiome(temp, moist float64) Biome {
	switch {
	case temp < 0.32 && moist > 0.62:
		return biomeTaiga
	case temp < 0.32:
		return biomeTundra
	case temp > 0.62 && moist < 0.35:
		return biomeDesert
	case temp > 0.62 && moist > 0.62:
		return biomeJungle
	case temp > 0.62:
		return biomeSavanna
	case moist < 0.35:
		return biomeSavanna
	case moist > 0.62:
		return biomeForest
	default:
		return biomePlains
	}
}

// BiomeNames returns every selectable biome name, for habitat validation.
func BiomeNames() []string {
	return []string{"TUNDRA", "TAIGA", "DESERT", "JUNGLE", "SAVANNA", "FOREST", "PLAINS"}
}
