package worldgen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"everdeep.ai/internal/oracle"
	"everdeep.ai/internal/world"
)

type Config struct {
	Graph         GraphConfig
	CacheCapacity int
	MinSpaces     int
	MaxSpaces     int
	Layout        string // "auto" or a fixed layout name
	MaxDifficulty int
}

func (c *Config) applyDefaults() {
	c.Graph.applyDefaults()
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 512
	}
	if c.MinSpaces <= 0 {
		c.MinSpaces = 9
	}
	if c.MaxSpaces < c.MinSpaces {
		c.MaxSpaces = c.MinSpaces + 7
	}
	if c.Layout == "" {
		c.Layout = "auto"
	}
	if c.MaxDifficulty <= 0 {
		c.MaxDifficulty = 10
	}
}

// Repository is the durable tier generation reads through and writes
// behind. Absent records return world.ErrNotFound.
type Repository interface {
	LoadChunk(ctx context.Context, id world.ChunkID) (*world.Chunk, error)
	LoadSpace(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, error)
	SaveChunk(ctx context.Context, c *world.Chunk) error
	SaveSpaces(ctx context.Context, ps []*world.SpaceProperties) error
}

// prefetchRepository is the optional capability of loading a space
// together with the spaces its resolved exits lead to. The generator
// uses it when a reload is likely followed by moves to neighbors.
type prefetchRepository interface {
	LoadSpaceWithPrefetch(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, map[world.ChunkID]*world.SpaceProperties, error)
}

type AuditEntry struct {
	ChunkID    string `json:"chunk_id"`
	Level      string `json:"level"`
	Attempts   int    `json:"attempts,omitempty"`
	Fallback   bool   `json:"fallback,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Err        string `json:"err,omitempty"`
}

// AuditSink receives one entry per fresh generation for offline
// debugging. Implementations must be safe for concurrent use.
type AuditSink interface {
	Record(e AuditEntry)
}

// ChunkResult pairs a chunk with the topology nodes its generation
// emitted. Nodes is non-nil only when this call generated a SUBZONE
// fresh; cache and repository hits return the chunk alone.
type ChunkResult struct {
	Chunk *world.Chunk
	Nodes []world.GraphNode
}

// Generator materializes the chunk hierarchy lazily: chunks exist
// once something references them, parents before children, each
// generated exactly once across concurrent callers and persisted
// before being published.
type Generator struct {
	cfg    Config
	seed   world.Seed
	store  *world.Store
	repo   Repository
	cache  *GenerationCache
	lore   *LoreEngine
	graphs *GraphGenerator
	fill   *FillEngine
	audit  AuditSink
	logger *log.Logger
}

func NewGenerator(cfg Config, seed world.Seed, store *world.Store, repo Repository, o oracle.Oracle, audit AuditSink, logger *log.Logger) *Generator {
	cfg.applyDefaults()
	return &Generator{
		cfg:    cfg,
		seed:   seed,
		store:  store,
		repo:   repo,
		cache:  NewGenerationCache(cfg.CacheCapacity, store),
		lore:   NewLoreEngine(o, logger),
		graphs: NewGraphGenerator(cfg.Graph),
		fill:   NewFillEngine(seed, o, logger),
		audit:  audit,
		logger: logger,
	}
}

func (g *Generator) Cache() *GenerationCache {
	return g.cache
}

// Bootstrap materializes the world root.
func (g *Generator) Bootstrap(ctx context.Context) (*world.Chunk, error) {
	res, err := g.GenerateChunk(ctx, world.WorldID(g.seed), "")
	if err != nil {
		return nil, err
	}
	return res.Chunk, nil
}

// EnsureChunk is GenerateChunk for callers that only need the chunk.
func (g *Generator) EnsureChunk(ctx context.Context, id world.ChunkID, dirHint string) (*world.Chunk, error) {
	res, err := g.GenerateChunk(ctx, id, dirHint)
	if err != nil {
		return nil, err
	}
	return res.Chunk, nil
}

// GenerateChunk returns the chunk for id, generating it exactly once
// across concurrent callers. Parents generate before children. The
// caller's ctx bounds only its own wait; generation itself is never
// cancelled mid-flight.
func (g *Generator) GenerateChunk(ctx context.Context, id world.ChunkID, dirHint string) (ChunkResult, error) {
	if !id.Valid() {
		return ChunkResult{}, fmt.Errorf("malformed chunk id %q", id)
	}
	if c, ok := g.cache.Get(id); ok {
		return ChunkResult{Chunk: c}, nil
	}
	chunk, nodes, err := g.cache.Do(ctx, id, func() (*world.Chunk, []world.GraphNode, error) {
		return g.generate(id, dirHint)
	})
	if err != nil {
		return ChunkResult{}, err
	}
	return ChunkResult{Chunk: chunk, Nodes: nodes}, nil
}

// generate runs inside the per-id flight. It re-checks the arena and
// the repository before doing real work: a racing flight or an
// earlier session may already own this id.
func (g *Generator) generate(id world.ChunkID, dirHint string) (*world.Chunk, []world.GraphNode, error) {
	ctx := context.Background()
	if c, ok := g.store.Chunk(id); ok {
		g.cache.Complete(id, c)
		return c, nil, nil
	}
	c, err := g.repo.LoadChunk(ctx, id)
	if err == nil {
		g.cache.Complete(id, c)
		return c, nil, nil
	}
	if !errors.Is(err, world.ErrNotFound) {
		return nil, nil, fmt.Errorf("load chunk %s: %w", id, err)
	}

	start := time.Now()
	chunk, nodes, attempts, fallback, err := g.generateFresh(ctx, id, dirHint)
	if g.audit != nil {
		e := AuditEntry{
			ChunkID:    string(id),
			Level:      id.Level().String(),
			Attempts:   attempts,
			Fallback:   fallback,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			e.Err = err.Error()
		}
		g.audit.Record(e)
	}
	if err != nil {
		return nil, nil, err
	}
	return chunk, nodes, nil
}

func (g *Generator) generateFresh(ctx context.Context, id world.ChunkID, dirHint string) (*world.Chunk, []world.GraphNode, int, bool, error) {
	level := id.Level()
	if level == world.LevelWorld {
		root := &world.Chunk{
			ID:             id,
			Level:          world.LevelWorld,
			Lore:           g.seed.Lore,
			Biome:          biomes[hashPick(g.seed.Int64(), "biome:"+string(id), len(biomes))],
			SizeEstimate:   g.sizeEstimate(world.LevelWorld, id),
			HostileDensity: 0.1,
			Difficulty:     1,
		}
		if err := g.repo.SaveChunk(ctx, root); err != nil {
			return nil, nil, 0, false, fmt.Errorf("persist chunk %s: %w", id, err)
		}
		g.cache.Complete(id, root)
		return root, nil, 0, false, nil
	}

	parentID, _ := id.Parent()
	parent, err := g.EnsureChunk(ctx, parentID, "")
	if err != nil {
		return nil, nil, 0, false, fmt.Errorf("ensure parent of %s: %w", id, err)
	}

	if level == world.LevelSpace {
		// The subzone flight emits every space. If the parent already
		// existed but this space is gone from the repository, re-emit
		// the deterministic topology to heal the gap.
		if c, ok := g.store.Chunk(id); ok {
			return c, nil, 0, false, nil
		}
		if err := g.reemitSpaces(ctx, parent); err != nil {
			return nil, nil, 0, false, err
		}
		if c, ok := g.store.Chunk(id); ok {
			return c, nil, 0, false, nil
		}
		return nil, nil, 0, false, fmt.Errorf("space %s missing after emitting %s", id, parent.ID)
	}

	lr := g.lore.Derive(ctx, LoreRequest{
		Seed:       g.seed,
		Parent:     parent,
		ChildID:    id,
		Level:      level,
		DirHint:    dirHint,
		Difficulty: parent.Difficulty,
	})

	diff := parent.Difficulty + hashPick(g.seed.Int64(), "diff:"+string(id), 2)
	if diff > g.cfg.MaxDifficulty {
		diff = g.cfg.MaxDifficulty
	}
	chunk := &world.Chunk{
		ID:             id,
		Level:          level,
		Parent:         parentID,
		Lore:           lr.Lore,
		Biome:          lr.Biome,
		SizeEstimate:   g.sizeEstimate(level, id),
		HostileDensity: driftDensity(parent.HostileDensity, g.seed.Int64(), id, diff-parent.Difficulty),
		Difficulty:     diff,
		Adjacency:      neighborAdjacency(id),
	}

	var nodes []world.GraphNode
	var spaces []*world.SpaceProperties
	var spaceChunks []*world.Chunk
	attempts := 0
	if level == world.LevelSubzone {
		nodes, attempts, err = g.generateTopology(chunk)
		if err != nil {
			return nil, nil, attempts, lr.Fallback, err
		}
		spaces, spaceChunks = g.emitStubs(chunk, nodes)
		for _, sc := range spaceChunks {
			chunk.Children = append(chunk.Children, sc.ID)
		}
	}

	if err := g.persistGenerated(ctx, chunk, spaces, spaceChunks); err != nil {
		return nil, nil, attempts, lr.Fallback, err
	}
	if err := g.linkIntoParent(ctx, parentID, id); err != nil {
		return nil, nil, attempts, lr.Fallback, err
	}

	for i, sc := range spaceChunks {
		g.store.PutSpace(spaces[i])
		g.cache.Complete(sc.ID, sc)
	}
	g.cache.Complete(id, chunk)
	return chunk, nodes, attempts, lr.Fallback, nil
}

func (g *Generator) generateTopology(chunk *world.Chunk) ([]world.GraphNode, int, error) {
	spread := g.cfg.MaxSpaces - g.cfg.MinSpaces + 1
	n := g.cfg.MinSpaces + hashPick(g.seed.Int64(), "spaces:"+string(chunk.ID), spread)
	layout := g.pickLayout(chunk)
	seed := chunkSeed(g.seed.Int64(), chunk.ID)
	nodes, attempts, err := g.graphs.Generate(seed, n, layout, chunk.Difficulty)
	if err != nil {
		return nil, attempts, fmt.Errorf("topology for %s (%s, %d nodes): %w", chunk.ID, layout, n, err)
	}
	return nodes, attempts, nil
}

func (g *Generator) pickLayout(chunk *world.Chunk) Layout {
	if g.cfg.Layout != "auto" {
		if l, ok := ParseLayout(g.cfg.Layout); ok {
			return l
		}
	}
	preferred := LayoutGrid
	switch chunk.Biome {
	case "caverns", "root tangle", "fungal forest", "ashen warrens":
		preferred = LayoutFloodFill
	case "ruins", "frozen gallery", "flooded halls":
		preferred = LayoutBSP
	}
	// Mostly the biome's native shape, sometimes a surprise.
	roll := hashPick(g.seed.Int64(), "layout:"+string(chunk.ID), 10)
	if roll < 7 {
		return preferred
	}
	return Layout(roll % 3)
}

// emitStubs builds one stub space plus its SPACE-level chunk record
// per topology node. Exits come straight from the node's edges;
// Frontier nodes additionally get a placeholder exit toward the
// not-yet-generated neighbor subzone, resolved by a later pass.
func (g *Generator) emitStubs(chunk *world.Chunk, nodes []world.GraphNode) ([]*world.SpaceProperties, []*world.Chunk) {
	var cx, cy float64
	for _, nd := range nodes {
		cx += float64(nd.Pos.X)
		cy += float64(nd.Pos.Y)
	}
	if len(nodes) > 0 {
		cx /= float64(len(nodes))
		cy /= float64(len(nodes))
	}

	spaces := make([]*world.SpaceProperties, 0, len(nodes))
	chunks := make([]*world.Chunk, 0, len(nodes))
	for _, nd := range nodes {
		sid, _ := chunk.ID.SpaceID(nd.Index)
		exits := make(map[string]world.EdgeTarget, len(nd.Edges))
		for _, e := range nd.Edges {
			target, _ := chunk.ID.SpaceID(e.To)
			exits[e.Dir] = world.EdgeTarget{
				Chunk:      target,
				Hidden:     e.Hidden,
				HiddenDC:   e.HiddenDC,
				Conditions: e.Conditions,
			}
		}
		if nd.Role == world.RoleFrontier {
			if label, target, ok := frontierPlaceholder(chunk.ID, nd, cx, cy, exits); ok {
				exits[label] = target
			}
		}
		spaces = append(spaces, &world.SpaceProperties{
			ChunkID: sid,
			Role:    nd.Role,
			Exits:   exits,
		})
		chunks = append(chunks, &world.Chunk{
			ID:             sid,
			Level:          world.LevelSpace,
			Parent:         chunk.ID,
			Lore:           chunk.Lore,
			Biome:          chunk.Biome,
			SizeEstimate:   1,
			HostileDensity: chunk.HostileDensity,
			Difficulty:     chunk.Difficulty,
		})
	}
	return spaces, chunks
}

// frontierPlaceholder picks the outward compass label for a frontier
// exit and the neighbor subzone it will lead to once generated.
func frontierPlaceholder(subzone world.ChunkID, nd world.GraphNode, cx, cy float64, exits map[string]world.EdgeTarget) (string, world.EdgeTarget, bool) {
	label, ok := world.DirectionFromDelta(floatSign(float64(nd.Pos.X)-cx), floatSign(float64(nd.Pos.Y)-cy))
	if !ok {
		label = "north"
	}
	if _, taken := exits[label]; taken {
		label = ""
		for _, dir := range world.Directions[:8] {
			if _, used := exits[dir]; !used {
				label = dir
				break
			}
		}
		if label == "" {
			return "", world.EdgeTarget{}, false
		}
	}
	dx, dy, _ := world.DirectionDelta(label)
	neighbor, ok := subzone.Neighbor(dx, dy)
	if !ok {
		return "", world.EdgeTarget{}, false
	}
	return label, world.EdgeTarget{Placeholder: PendingPlaceholder(neighbor, label)}, true
}

func (g *Generator) persistGenerated(ctx context.Context, chunk *world.Chunk, spaces []*world.SpaceProperties, spaceChunks []*world.Chunk) error {
	if err := g.repo.SaveChunk(ctx, chunk); err != nil {
		return fmt.Errorf("persist chunk %s: %w", chunk.ID, err)
	}
	for _, sc := range spaceChunks {
		if err := g.repo.SaveChunk(ctx, sc); err != nil {
			return fmt.Errorf("persist chunk %s: %w", sc.ID, err)
		}
	}
	if len(spaces) > 0 {
		if err := g.repo.SaveSpaces(ctx, spaces); err != nil {
			return fmt.Errorf("persist spaces of %s: %w", chunk.ID, err)
		}
	}
	return nil
}

// linkIntoParent appends the new child to the parent's ordered child
// list, copy-and-replace, and persists the updated parent.
func (g *Generator) linkIntoParent(ctx context.Context, parentID, childID world.ChunkID) error {
	updated, ok := g.store.UpdateChunk(parentID, func(p *world.Chunk) {
		if !p.HasChild(childID) {
			p.Children = append(p.Children, childID)
		}
	})
	if !ok {
		return fmt.Errorf("parent %s not resident while linking %s", parentID, childID)
	}
	if err := g.repo.SaveChunk(ctx, updated); err != nil {
		return fmt.Errorf("persist parent %s: %w", parentID, err)
	}
	return nil
}

// reemitSpaces deterministically regenerates a subzone's topology and
// fills whatever gaps the arena and repository have: a lost space
// chunk row, a lost space record, or both. A crash between chunk and
// space persistence leaves exactly one of the pair, so the two are
// healed independently. Never overwrites an existing (possibly
// filled) space.
func (g *Generator) reemitSpaces(ctx context.Context, subzone *world.Chunk) error {
	if subzone.Level != world.LevelSubzone {
		return fmt.Errorf("chunk %s is %s, not a subzone", subzone.ID, subzone.Level)
	}
	nodes, _, err := g.generateTopology(subzone)
	if err != nil {
		return err
	}
	spaces, spaceChunks := g.emitStubs(subzone, nodes)
	var missing []*world.SpaceProperties
	for i, sc := range spaceChunks {
		haveChunk := false
		if _, ok := g.store.Chunk(sc.ID); ok {
			haveChunk = true
		} else if _, err := g.repo.LoadChunk(ctx, sc.ID); err == nil {
			haveChunk = true
		}
		haveSpace := false
		if _, ok := g.store.Space(sc.ID); ok {
			haveSpace = true
		} else if _, err := g.repo.LoadSpace(ctx, sc.ID); err == nil {
			haveSpace = true
		}
		if haveChunk && haveSpace {
			continue
		}
		if !haveChunk {
			if err := g.repo.SaveChunk(ctx, sc); err != nil {
				return fmt.Errorf("persist chunk %s: %w", sc.ID, err)
			}
		}
		g.cache.Complete(sc.ID, sc)
		if !haveSpace {
			missing = append(missing, spaces[i])
			g.store.PutSpace(spaces[i])
		}
	}
	if len(missing) > 0 {
		if err := g.repo.SaveSpaces(ctx, missing); err != nil {
			return fmt.Errorf("persist spaces of %s: %w", subzone.ID, err)
		}
		if g.logger != nil {
			g.logger.Printf("re-emitted %d missing spaces under %s", len(missing), subzone.ID)
		}
	}
	return nil
}

// EnsureSpace returns the properties for a space id, loading through
// the repository and generating the owning subzone when the space has
// never existed.
func (g *Generator) EnsureSpace(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, error) {
	if id.Level() != world.LevelSpace {
		return nil, fmt.Errorf("id %s is not a space", id)
	}
	if p, ok := g.store.Space(id); ok {
		return p, nil
	}
	p, err := g.loadSpace(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, world.ErrNotFound) {
		return nil, fmt.Errorf("load space %s: %w", id, err)
	}
	if _, err := g.EnsureChunk(ctx, id, ""); err != nil {
		return nil, err
	}
	if p, ok := g.store.Space(id); ok {
		return p, nil
	}
	if p, err := g.loadSpace(ctx, id); err == nil {
		return p, nil
	}
	// The space chunk row survived but the record did not, so
	// EnsureChunk had nothing to regenerate. Heal from the subzone's
	// deterministic topology.
	parentID, _ := id.Parent()
	parent, err := g.EnsureChunk(ctx, parentID, "")
	if err != nil {
		return nil, err
	}
	if err := g.reemitSpaces(ctx, parent); err != nil {
		return nil, err
	}
	if p, ok := g.store.Space(id); ok {
		return p, nil
	}
	return nil, fmt.Errorf("space %s missing after generation", id)
}

// loadSpace pulls one space from the repository into the store. When
// the repository can prefetch, the neighbors come along and are kept
// unless a fresher record is already resident.
func (g *Generator) loadSpace(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, error) {
	if pf, ok := g.repo.(prefetchRepository); ok {
		p, neighbors, err := pf.LoadSpaceWithPrefetch(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, np := range neighbors {
			if _, resident := g.store.Space(np.ChunkID); !resident {
				g.store.PutSpace(np)
			}
		}
		g.store.PutSpace(p)
		return p, nil
	}
	p, err := g.repo.LoadSpace(ctx, id)
	if err != nil {
		return nil, err
	}
	g.store.PutSpace(p)
	return p, nil
}

// FillSpace materializes content for a space on first entry. Already
// filled spaces come back untouched. Concurrent fillers converge on
// whichever write publishes first; both persist the same winning
// record. A persistence failure still returns the published record so
// play continues, with the save retried at the next touch.
func (g *Generator) FillSpace(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, error) {
	stub, err := g.EnsureSpace(ctx, id)
	if err != nil {
		return nil, err
	}
	if stub.Filled() {
		return stub, nil
	}
	parentID, _ := id.Parent()
	chunk, err := g.EnsureChunk(ctx, parentID, "")
	if err != nil {
		return nil, err
	}

	filled := g.fill.Fill(ctx, stub, chunk)
	final, ok := g.store.UpdateSpace(id, func(p *world.SpaceProperties) {
		if p.Filled() {
			return
		}
		p.Description = filled.Description
		p.Brightness = filled.Brightness
		p.Terrain = filled.Terrain
		p.Hazards = filled.Hazards
		p.Resources = filled.Resources
		p.SafeZone = filled.SafeZone
		if p.Flags == nil {
			p.Flags = filled.Flags
		}
	})
	if !ok {
		return nil, fmt.Errorf("space %s vanished during fill", id)
	}
	if err := g.repo.SaveSpaces(ctx, []*world.SpaceProperties{final}); err != nil {
		return final, fmt.Errorf("persist filled space %s: %w", id, err)
	}
	return final, nil
}

func (g *Generator) sizeEstimate(level world.Level, id world.ChunkID) int {
	base := map[world.Level]int{
		world.LevelWorld:   4096,
		world.LevelRegion:  1024,
		world.LevelZone:    192,
		world.LevelSubzone: (g.cfg.MinSpaces + g.cfg.MaxSpaces) / 2,
	}[level]
	if base == 0 {
		return 1
	}
	jitter := hashPick(g.seed.Int64(), "size:"+string(id), base/2+1) - base/4
	return base + jitter
}

func floatSign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func driftDensity(parent float64, seed int64, id world.ChunkID, diffStep int) float64 {
	jitter := (float64(hashPick(seed, "hostile:"+string(id), 21)) - 10) / 100
	v := parent + jitter + 0.02*float64(diffStep)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func neighborAdjacency(id world.ChunkID) map[string]world.ChunkID {
	if _, _, ok := id.Coords(); !ok {
		return nil
	}
	adj := make(map[string]world.ChunkID, 8)
	for _, dir := range world.Directions[:8] {
		dx, dy, _ := world.DirectionDelta(dir)
		if nbr, ok := id.Neighbor(dx, dy); ok {
			adj[dir] = nbr
		}
	}
	return adj
}
