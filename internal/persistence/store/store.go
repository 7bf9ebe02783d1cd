// Package store persists chunk block arrays and player profiles on disk.
// Layout: one raw binary file per chunk under chunks/, one consolidated
// profiles.json. Load failures are treated as "no prior record"; save
// failures are logged and retried on the next flush interval.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"blockhaven/internal/protocol"
)

type ChunkKey struct {
	CX int
	CZ int
}

type Store struct {
	dir string
	log *log.Logger
}

func Open(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "chunks"), 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, log: logger}, nil
}

func (s *Store) chunkPath(k ChunkKey) string {
	return filepath.Join(s.dir, "chunks", fmt.Sprintf("c.%d.%d.bin", k.CX, k.CZ))
}

// ReadChunk returns the stored block bytes, or ok=false when the chunk has
// never been persisted (or the file is unreadable, which we treat the same).
func (s *Store) ReadChunk(k ChunkKey, wantLen int) ([]byte, bool) {
	b, err := os.ReadFile(s.chunkPath(k))
	if err != nil {
		return nil, false
	}
	if len(b) != wantLen {
		s.log.Printf("store: chunk %d,%d has %d bytes, want %d; regenerating", k.CX, k.CZ, len(b), wantLen)
		return nil, false
	}
	return b, true
}

func (s *Store) writeChunk(k ChunkKey, blocks []byte) error {
	tmp := s.chunkPath(k) + ".tmp"
	if err := os.WriteFile(tmp, blocks, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.chunkPath(k))
}

func (s *Store) profilesPath() string {
	return filepath.Join(s.dir, "profiles.json")
}

// LoadProfiles reads the consolidated profile map. A missing or corrupt
// file is an empty map, not an error.
func (s *Store) LoadProfiles() map[string]protocol.Profile {
	out := map[string]protocol.Profile{}
	raw, err := os.ReadFile(s.profilesPath())
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.Printf("store: profiles.json unreadable: %v", err)
		return map[string]protocol.Profile{}
	}
	return out
}

func (s *Store) saveProfiles(profiles map[string]protocol.Profile) error {
	raw, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.profilesPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.profilesPath())
}

// FlushRequest carries copies of dirty state out of the world loop so disk
// I/O never runs on the simulation goroutine.
type FlushRequest struct {
	Chunks   map[ChunkKey][]byte
	Profiles map[string]protocol.Profile

	// Done, when non-nil, receives the set of chunk keys that failed to
	// write so the world can re-mark them dirty. Used by the shutdown path.
	Done chan<- []ChunkKey
}

// Flush applies one flush request. Partial failure is expected: each chunk
// write is independent and failed keys are reported back for retry.
func (s *Store) Flush(req FlushRequest) {
	var failed []ChunkKey
	for k, blocks := range req.Chunks {
		if err := s.writeChunk(k, blocks); err != nil {
			s.log.Printf("store: write chunk %d,%d: %v", k.CX, k.CZ, err)
			failed = append(failed, k)
		}
	}
	if req.Profiles != nil {
		if err := s.saveProfiles(req.Profiles); err != nil {
			s.log.Printf("store: write profiles: %v", err)
		}
	}
	if req.Done != nil {
		req.Done <- failed
	}
}

// Run drains flush requests until the channel closes. Intended to run on
// its own goroutine, mirroring the snapshot-writer pattern in cmd/server.
func (s *Store) Run(ch <-chan FlushRequest) {
	for req := range ch {
		s.Flush(req)
	}
}
