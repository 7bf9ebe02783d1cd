package world

import (
	"blockhaven/internal/persistence/store"
	"blockhaven/internal/sim/blocks"
	"blockhaven/internal/sim/terrain"
)

type ChunkKey = store.ChunkKey

type Chunk struct {
	CX, CZ int
	Blocks []byte // len = terrain.ChunkVolume, indexed by terrain.BlockIndex
}

// ChunkStore materializes chunks on demand: cache, then disk, then the
// generator. A chunk is generated at most once per process lifetime and is
// never evicted; dirty keys drive the persistence flush.
type ChunkStore struct {
	gen    *terrain.Generator
	loader ChunkLoader

	// Accessed only from the world loop goroutine.
	chunks map[ChunkKey]*Chunk
	dirty  map[ChunkKey]struct{}
}

func NewChunkStore(gen *terrain.Generator, loader ChunkLoader) *ChunkStore {
	return &ChunkStore{
		gen:    gen,
		loader: loader,
		chunks: map[ChunkKey]*Chunk{},
		dirty:  map[ChunkKey]struct{}{},
	}
}

func (s *ChunkStore) Ensure(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{CX: cx, CZ: cz}
	if s.loader != nil {
		if b, ok := s.loader.ReadChunk(k, terrain.ChunkVolume); ok {
			ch.Blocks = b
		}
	}
	if ch.Blocks == nil {
		ch.Blocks = s.gen.Chunk(cx, cz)
	}
	s.chunks[k] = ch
	return ch
}

// Block reads a world-space coordinate. Out-of-range Y is air.
func (s *ChunkStore) Block(x, y, z int) uint8 {
	if y < 0 || y >= terrain.ChunkH {
		return blocks.Air
	}
	ch := s.Ensure(floorDiv(x, terrain.ChunkW), floorDiv(z, terrain.ChunkW))
	return ch.Blocks[terrain.BlockIndex(mod(x, terrain.ChunkW), y, mod(z, terrain.ChunkW))]
}

// SetBlock writes a world-space coordinate and marks the chunk dirty.
// Out-of-range Y writes are ignored.
func (s *ChunkStore) SetBlock(x, y, z int, b uint8) {
	if y < 0 || y >= terrain.ChunkH {
		return
	}
	cx := floorDiv(x, terrain.ChunkW)
	cz := floorDiv(z, terrain.ChunkW)
	ch := s.Ensure(cx, cz)
	i := terrain.BlockIndex(mod(x, terrain.ChunkW), y, mod(z, terrain.ChunkW))
	if ch.Blocks[i] == b {
		return
	}
	ch.Blocks[i] = b
	s.dirty[ChunkKey{CX: cx, CZ: cz}] = struct{}{}
}

func (s *ChunkStore) Loaded() int { return len(s.chunks) }

// DirtySnapshot copies every dirty chunk's bytes and clears the dirty set.
// The copies make the snapshot safe to hand to the flush goroutine while
// the loop keeps mutating.
func (s *ChunkStore) DirtySnapshot() map[ChunkKey][]byte {
	if len(s.dirty) == 0 {
		return nil
	}
	out := make(map[ChunkKey][]byte, len(s.dirty))
	for k := range s.dirty {
		ch := s.chunks[k]
		cp := make([]byte, len(ch.Blocks))
		copy(cp, ch.Blocks)
		out[k] = cp
	}
	s.dirty = map[ChunkKey]struct{}{}
	return out
}

// ReMark restores dirty flags for chunks whose flush failed.
func (s *ChunkStore) ReMark(keys []ChunkKey) {
	for _, k := range keys {
		s.dirty[k] = struct{}{}
	}
}

// SurfaceY walks a column down to the highest solid block, skipping
// foliage and water. Used for spawn placement.
func (s *ChunkStore) SurfaceY(x, z int) int {
	for y := terrain.ChunkH - 1; y > 0; y-- {
		b := s.Block(x, y, z)
		if blocks.IsSolid(b) && b != blocks.Leaves {
			return y
		}
	}
	return 1
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
