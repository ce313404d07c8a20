package world

import (
	"sort"
	"sync"
)

// Store is the shared in-memory arena of chunk and space records.
// Published records are immutable: readers receive the current
// pointer and must not write through it; updates clone, mutate the
// clone, and republish under the write lock.
type Store struct {
	mu     sync.RWMutex
	seed   Seed
	chunks map[ChunkID]*Chunk
	spaces map[ChunkID]*SpaceProperties
}

func NewStore(seed Seed) *Store {
	return &Store{
		seed:   seed,
		chunks: map[ChunkID]*Chunk{},
		spaces: map[ChunkID]*SpaceProperties{},
	}
}

func (s *Store) Seed() Seed {
	return s.seed
}

func (s *Store) Chunk(id ChunkID) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	return c, ok
}

func (s *Store) Space(id ChunkID) (*SpaceProperties, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.spaces[id]
	return p, ok
}

func (s *Store) PutChunk(c *Chunk) {
	s.mu.Lock()
	s.chunks[c.ID] = c
	s.mu.Unlock()
}

func (s *Store) PutSpace(p *SpaceProperties) {
	s.mu.Lock()
	s.spaces[p.ChunkID] = p
	s.mu.Unlock()
}

// UpdateChunk republishes a clone with fn applied. ok is false when
// the id is unknown.
func (s *Store) UpdateChunk(id ChunkID, fn func(*Chunk)) (*Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.chunks[id]
	if !ok {
		return nil, false
	}
	next := cur.Clone()
	fn(next)
	s.chunks[id] = next
	return next, true
}

// UpdateSpace republishes a clone with fn applied. ok is false when
// the id is unknown.
func (s *Store) UpdateSpace(id ChunkID, fn func(*SpaceProperties)) (*SpaceProperties, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.spaces[id]
	if !ok {
		return nil, false
	}
	next := cur.Clone()
	fn(next)
	s.spaces[id] = next
	return next, true
}

// DeleteChunk drops the in-memory record. Meant for cache eviction;
// the durable copy is unaffected.
func (s *Store) DeleteChunk(id ChunkID) {
	s.mu.Lock()
	delete(s.chunks, id)
	s.mu.Unlock()
}

func (s *Store) DeleteSpace(id ChunkID) {
	s.mu.Lock()
	delete(s.spaces, id)
	s.mu.Unlock()
}

// ChunkIDs returns every stored chunk id in sorted order, for
// deterministic iteration during saves and snapshots.
func (s *Store) ChunkIDs() []ChunkID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ChunkID, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) SpaceIDs() []ChunkID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ChunkID, 0, len(s.spaces))
	for id := range s.spaces {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) Counts() (chunks, spaces int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), len(s.spaces)
}
