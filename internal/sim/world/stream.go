package world

import (
	"blockhaven/internal/protocol"
)

// streamChunks sends every chunk within the Chebyshev stream radius of the
// session's current chunk that this connection has not yet received. Keys
// are tracked per session, so moving back and forth never resends and each
// tick only pays for the newly-in-range ring.
func (w *World) streamChunks(s *Session) {
	center := s.chunkCoord()
	if s.hasChunk && center == s.lastChunk {
		return
	}
	s.lastChunk = center
	s.hasChunk = true

	r := w.cfg.StreamRadius
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			k := ChunkKey{CX: center.CX + dx, CZ: center.CZ + dz}
			if _, done := s.sent[k]; done {
				continue
			}
			ch := w.chunks.Ensure(k.CX, k.CZ)
			s.sent[k] = struct{}{}
			w.sendTo(s, protocol.MustEncode(protocol.TypeWorldChunk, "", protocol.WorldChunkMsg{
				CX:     k.CX,
				CZ:     k.CZ,
				Blocks: ch.Blocks,
			}))
		}
	}
}
