package terrain

import "blockhaven/internal/sim/blocks"

// World dimensions. These are wire-format constants shared with clients;
// changing them invalidates every persisted chunk.
const (
	ChunkW   = 16
	ChunkH   = 64
	SeaLevel = 20

	ChunkVolume = ChunkW * ChunkH * ChunkW
)

// BlockIndex flattens chunk-local (x, y, z) into the dense block array.
// This is the single place index arithmetic lives.
func BlockIndex(x, y, z int) int {
	return (y*ChunkW+z)*ChunkW + x
}

// Generator produces chunk block arrays from a seed. Identical (seed, cx,
// cz) always yields an identical array; there is no shared mutable state.
type Generator struct {
	Seed int64

	height *NoiseField // broad surface height
	detail *NoiseField // high-frequency surface roughness
	temp   *NoiseField // biome temperature
	moist  *NoiseField // biome moisture
	trees  *NoiseField // tree placement density
}

// Seed offsets keep the fields independent while deriving from one world
// seed, the same scheme the generation uses for caves and ores below.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Seed:   seed,
		height: NewNoiseField(seed),
		detail: NewNoiseField(seed + 100),
		temp:   NewNoiseField(seed + 1),
		moist:  NewNoiseField(seed + 2),
		trees:  NewNoiseField(seed + 4),
	}
}

// BiomeAt resolves the biome for a world-space column.
func (g *Generator) BiomeAt(wx, wz int) Biome {
	t := g.temp.Fractal(float64(wx)/256.0, float64(wz)/256.0, 4, 0.5, 2.0)
	m := g.moist.Fractal(float64(wx)/256.0+100, float64(wz)/256.0+100, 4, 0.5, 2.0)
	return SelectBiome(t, m)
}

// SurfaceHeight computes the solid surface Y for a world-space column,
// clamped to the vertical bounds.
func (g *Generator) SurfaceHeight(wx, wz int) int {
	b := g.BiomeAt(wx, wz)
	broad := g.height.Fractal(float64(wx)/96.0, float64(wz)/96.0, 4, 0.5, 2.0)
	rough := g.detail.At(float64(wx)/9.0, float64(wz)/9.0)
	h := float64(SeaLevel) + b.HeightBase + (broad*2-1)*b.HeightVar + (rough*2-1)*1.5
	y := int(h)
	if y < 2 {
		y = 2
	}
	if y > ChunkH-6 {
		y = ChunkH - 6
	}
	return y
}

// Ore probability bands are keyed to absolute depth, thresholds per mille
// against a per-cell hash roll.
func (g *Generator) deepBlock(wx, y, wz int) uint8 {
	roll := int(hash3(g.Seed+3000, int64(wx), int64(y), int64(wz)) % 1000)
	switch {
	case y < 8 && roll < 6:
		return blocks.CrystalOre
	case y < 20 && roll < 18:
		return blocks.CopperOre
	case y < 28 && roll < 25:
		return blocks.IronOre
	case roll < 40:
		return blocks.CoalOre
	case roll < 55:
		return blocks.Gravel
	default:
		return blocks.Stone
	}
}

func (g *Generator) isCave(wx, y, wz int) bool {
	const threshold = 0.66
	v := noise3(g.Seed+300, float64(wx)/24.0, float64(y)/14.0, float64(wz)/24.0)
	return v > threshold
}

// Chunk generates the dense block array for chunk (cx, cz).
func (g *Generator) Chunk(cx, cz int) []byte {
	out := make([]byte, ChunkVolume)

	var heights [ChunkW][ChunkW]int
	for z := 0; z < ChunkW; z++ {
		for x := 0; x < ChunkW; x++ {
			wx := cx*ChunkW + x
			wz := cz*ChunkW + z
			biome := g.BiomeAt(wx, wz)
			surface := g.SurfaceHeight(wx, wz)
			heights[x][z] = surface

			for y := 0; y <= surface; y++ {
				var b uint8
				switch {
				case y == 0:
					b = blocks.Bedrock
				case y >= surface-2 && y < surface:
					b = biome.Subsoil
				case y == surface:
					b = biome.Surface
				default:
					b = g.deepBlock(wx, y, wz)
				}
				// Carve caves strictly below the surface skin and above
				// bedrock so the column keeps a floor and a roof.
				if y >= 4 && y < surface-3 && b != blocks.Bedrock && g.isCave(wx, y, wz) {
					b = blocks.Air
				}
				out[BlockIndex(x, y, z)] = b
			}

			// Flood up to sea level; submerged surfaces read as sand.
			if surface < SeaLevel {
				out[BlockIndex(x, surface, z)] = blocks.Sand
				for y := surface + 1; y <= SeaLevel; y++ {
					out[BlockIndex(x, y, z)] = blocks.Water
				}
			}
		}
	}

	g.plantTrees(cx, cz, &heights, out)
	return out
}

// plantTrees roots trunks and rough-sphere canopies on eligible surface
// columns. The 2-block margin keeps canopies inside the chunk so
// generation never needs neighbor chunks.
func (g *Generator) plantTrees(cx, cz int, heights *[ChunkW][ChunkW]int, out []byte) {
	for z := 2; z < ChunkW-2; z++ {
		for x := 2; x < ChunkW-2; x++ {
			wx := cx*ChunkW + x
			wz := cz*ChunkW + z
			biome := g.BiomeAt(wx, wz)
			if biome.TreeDensity <= 0 {
				continue
			}
			v := g.trees.At(float64(wx)*0.7, float64(wz)*0.7)
			if v >= biome.TreeDensity {
				continue
			}
			surface := heights[x][z]
			if surface >= ChunkH-9 || surface < SeaLevel {
				continue
			}
			if out[BlockIndex(x, surface, z)] != biome.Surface {
				continue // cave opening or flooded column
			}

			if biome.TreeKind == blocks.Cactus {
				h := 1 + int(hash2(g.Seed+7, int64(wx), int64(wz))%3)
				for dy := 1; dy <= h; dy++ {
					if out[BlockIndex(x, surface+dy, z)] == blocks.Air {
						out[BlockIndex(x, surface+dy, z)] = blocks.Cactus
					}
				}
				continue
			}

			trunk := 4 + int(hash2(g.Seed+7, int64(wx), int64(wz))%3)
			top := surface + trunk
			for dy := 1; dy <= trunk; dy++ {
				if out[BlockIndex(x, surface+dy, z)] == blocks.Air {
					out[BlockIndex(x, surface+dy, z)] = blocks.Log
				}
			}
			// Canopy: radius-2 ball around the trunk top, existing blocks kept.
			for dy := -2; dy <= 2; dy++ {
				for dx := -2; dx <= 2; dx++ {
					for dz := -2; dz <= 2; dz++ {
						if dx*dx+dy*dy+dz*dz > 5 {
							continue
						}
						ly := top + dy
						if ly <= surface || ly >= ChunkH {
							continue
						}
						i := BlockIndex(x+dx, ly, z+dz)
						if out[i] == blocks.Air {
							out[i] = blocks.Leaves
						}
					}
				}
			}
		}
	}
}
