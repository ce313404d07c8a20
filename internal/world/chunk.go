package world

// Chunk is one node of the 5-level hierarchy. Published records are
// immutable; all mutation goes through Store copy-and-replace.
type Chunk struct {
	ID       ChunkID
	Level    Level
	Parent   ChunkID   // empty only for the world root
	Children []ChunkID // ordered by generation

	Lore           string
	Biome          string
	SizeEstimate   int
	HostileDensity float64 // 0..1
	Difficulty     int

	// Adjacency caches sibling neighbor ids per compass direction,
	// written as neighbors are derived.
	Adjacency map[string]ChunkID
}

func (c *Chunk) Clone() *Chunk {
	cp := *c
	if c.Children != nil {
		cp.Children = make([]ChunkID, len(c.Children))
		copy(cp.Children, c.Children)
	}
	if c.Adjacency != nil {
		cp.Adjacency = make(map[string]ChunkID, len(c.Adjacency))
		for k, v := range c.Adjacency {
			cp.Adjacency[k] = v
		}
	}
	return &cp
}

func (c *Chunk) HasChild(id ChunkID) bool {
	for _, ch := range c.Children {
		if ch == id {
			return true
		}
	}
	return false
}
