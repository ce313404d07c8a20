package worldgen

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"everdeep.ai/internal/oracle"
	"everdeep.ai/internal/world"
)

// memRepo is a map-backed Repository. Loads return clones so a caller
// mutating a loaded record cannot corrupt the "durable" copy, matching
// how a real store behaves.
type memRepo struct {
	mu         sync.Mutex
	chunks     map[world.ChunkID]*world.Chunk
	spaces     map[world.ChunkID]*world.SpaceProperties
	chunkSaves map[world.ChunkID]int
	fail       error
}

func newMemRepo() *memRepo {
	return &memRepo{
		chunks:     map[world.ChunkID]*world.Chunk{},
		spaces:     map[world.ChunkID]*world.SpaceProperties{},
		chunkSaves: map[world.ChunkID]int{},
	}
}

func (r *memRepo) LoadChunk(_ context.Context, id world.ChunkID) (*world.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, world.ErrNotFound)
	}
	return c.Clone(), nil
}

func (r *memRepo) LoadSpace(_ context.Context, id world.ChunkID) (*world.SpaceProperties, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.spaces[id]
	if !ok {
		return nil, fmt.Errorf("space %s: %w", id, world.ErrNotFound)
	}
	return p.Clone(), nil
}

func (r *memRepo) SaveChunk(_ context.Context, c *world.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.chunks[c.ID] = c.Clone()
	r.chunkSaves[c.ID]++
	return nil
}

func (r *memRepo) SaveSpaces(_ context.Context, ps []*world.SpaceProperties) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, p := range ps {
		r.spaces[p.ChunkID] = p.Clone()
	}
	return nil
}

func (r *memRepo) setFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *memRepo) saves(id world.ChunkID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunkSaves[id]
}

func (r *memRepo) dropSpace(id world.ChunkID) {
	r.mu.Lock()
	delete(r.spaces, id)
	r.mu.Unlock()
}

func (r *memRepo) dropChunk(id world.ChunkID) {
	r.mu.Lock()
	delete(r.chunks, id)
	r.mu.Unlock()
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *memAudit) Record(e AuditEntry) {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

func (a *memAudit) byLevel(level string) []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []AuditEntry
	for _, e := range a.entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func testStack(t *testing.T) (*Generator, *world.Store, *memRepo, *memAudit) {
	t.Helper()
	seed := world.Seed{Text: "generator test", Lore: "Nothing here is older than the dark."}
	store := world.NewStore(seed)
	repo := newMemRepo()
	audit := &memAudit{}
	gen := NewGenerator(Config{MinSpaces: 9, MaxSpaces: 12}, seed, store, repo, oracle.Disabled{}, audit, nil)
	return gen, store, repo, audit
}

func subzoneUnder(t *testing.T, root world.ChunkID) world.ChunkID {
	t.Helper()
	region, ok := root.ChildAt(0, 0)
	if !ok {
		t.Fatalf("region id")
	}
	zone, ok := region.ChildAt(1, 2)
	if !ok {
		t.Fatalf("zone id")
	}
	sub, ok := zone.ChildAt(3, 1)
	if !ok {
		t.Fatalf("subzone id")
	}
	return sub
}

func TestGenerateChunkParentsFirst(t *testing.T) {
	gen, store, repo, audit := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)

	res, err := gen.GenerateChunk(ctx, sub, "north")
	if err != nil {
		t.Fatalf("generate subzone: %v", err)
	}
	if res.Chunk.Level != world.LevelSubzone {
		t.Fatalf("level = %v", res.Chunk.Level)
	}
	if len(res.Nodes) == 0 {
		t.Fatalf("fresh subzone returned no topology nodes")
	}

	// Every ancestor must exist and name its child.
	id := sub
	for {
		parentID, ok := id.Parent()
		if !ok {
			break
		}
		parent, ok := store.Chunk(parentID)
		if !ok {
			t.Fatalf("ancestor %s not generated", parentID)
		}
		if !parent.HasChild(id) {
			t.Fatalf("parent %s does not list %s", parentID, id)
		}
		if repo.saves(parentID) == 0 {
			t.Fatalf("ancestor %s never persisted", parentID)
		}
		id = parentID
	}

	if n := len(res.Chunk.Children); n < 9 || n > 12 {
		t.Fatalf("subzone has %d spaces, want 9..12", n)
	}
	if res.Chunk.Lore == "" || res.Chunk.Biome == "" {
		t.Fatalf("subzone missing lore or biome")
	}
	if res.Chunk.Difficulty < root.Difficulty {
		t.Fatalf("difficulty decreased toward the leaves")
	}
	if len(audit.byLevel("SUBZONE")) != 1 {
		t.Fatalf("audit entries for subzone: %d", len(audit.byLevel("SUBZONE")))
	}
	if e := audit.byLevel("SUBZONE")[0]; e.Attempts < 1 || !e.Fallback {
		t.Fatalf("subzone audit entry %+v", e)
	}
}

func TestSubzoneEmitsStubSpaces(t *testing.T) {
	gen, store, _, _ := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)
	res, err := gen.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	frontiers := 0
	placeholders := 0
	for _, sid := range res.Chunk.Children {
		sc, ok := store.Chunk(sid)
		if !ok {
			t.Fatalf("space chunk %s missing", sid)
		}
		if sc.Level != world.LevelSpace || sc.Parent != sub {
			t.Fatalf("space chunk %s malformed: %+v", sid, sc)
		}
		p, ok := store.Space(sid)
		if !ok {
			t.Fatalf("space record %s missing", sid)
		}
		if p.Filled() {
			t.Fatalf("stub %s already filled", sid)
		}
		if len(p.Exits) == 0 {
			t.Fatalf("stub %s has no exits", sid)
		}
		if p.Role == world.RoleFrontier {
			frontiers++
		}
		for label, tgt := range p.Exits {
			if tgt.Resolved() == (tgt.Placeholder != "") {
				t.Fatalf("exit %q of %s is neither resolved nor placeholder: %+v", label, sid, tgt)
			}
			if tgt.Placeholder != "" {
				placeholders++
				continue
			}
			// Intra-subzone exits are reciprocal.
			q, ok := store.Space(tgt.Chunk)
			if !ok {
				t.Fatalf("exit %q of %s points at missing space %s", label, sid, tgt.Chunk)
			}
			back := false
			for backLabel, bt := range q.Exits {
				if bt.Chunk != sid {
					continue
				}
				back = true
				if op, compass := world.OppositeDirection(label); compass && backLabel != op {
					t.Fatalf("exit %q of %s returns as %q, want %q", label, sid, backLabel, op)
				}
			}
			if !back {
				t.Fatalf("exit %q of %s has no reciprocal", label, sid)
			}
		}
	}
	if frontiers < 2 {
		t.Fatalf("subzone has %d frontier spaces", frontiers)
	}
	if placeholders == 0 {
		t.Fatalf("no placeholder exits toward neighbor subzones")
	}
}

func TestGenerateChunkDeterministic(t *testing.T) {
	genA, _, repoA, _ := testStack(t)
	genB, _, repoB, _ := testStack(t)
	ctx := context.Background()

	rootA, err := genA.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap a: %v", err)
	}
	if _, err := genB.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap b: %v", err)
	}
	sub := subzoneUnder(t, rootA.ID)
	if _, err := genA.GenerateChunk(ctx, sub, "east"); err != nil {
		t.Fatalf("a: %v", err)
	}
	if _, err := genB.GenerateChunk(ctx, sub, "east"); err != nil {
		t.Fatalf("b: %v", err)
	}

	if !reflect.DeepEqual(repoA.chunks, repoB.chunks) {
		t.Fatalf("same seed persisted different chunks")
	}
	if !reflect.DeepEqual(repoA.spaces, repoB.spaces) {
		t.Fatalf("same seed persisted different spaces")
	}
}

func TestGenerateChunkConcurrent(t *testing.T) {
	gen, _, repo, _ := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)

	const workers = 12
	results := make([]*world.Chunk, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := gen.GenerateChunk(ctx, sub, "")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = res.Chunk
		}(i)
	}
	close(start)
	wg.Wait()

	if n := repo.saves(sub); n != 1 {
		t.Fatalf("subzone persisted %d times", n)
	}
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d saw a different chunk", i)
		}
	}
}

func TestGenerateChunkReloadsFromRepository(t *testing.T) {
	genA, _, repo, _ := testStack(t)
	ctx := context.Background()
	rootA, err := genA.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, rootA.ID)
	resA, err := genA.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// A second session over the same repository loads, never re-rolls.
	seed := world.Seed{Text: "generator test", Lore: "Nothing here is older than the dark."}
	genB := NewGenerator(Config{MinSpaces: 9, MaxSpaces: 12}, seed, world.NewStore(seed), repo, oracle.Disabled{}, nil, nil)
	resB, err := genB.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(resA.Chunk, resB.Chunk) {
		t.Fatalf("reload differs:\n%+v\n%+v", resA.Chunk, resB.Chunk)
	}
	if n := repo.saves(sub); n != 1 {
		t.Fatalf("reload persisted the subzone again (%d saves)", n)
	}

	sp, err := genB.EnsureSpace(ctx, resB.Chunk.Children[0])
	if err != nil {
		t.Fatalf("ensure space: %v", err)
	}
	if sp.ChunkID != resB.Chunk.Children[0] {
		t.Fatalf("wrong space loaded")
	}
}

// prefetchRepo overlays neighbor prefetch onto memRepo the way the
// sqlite repository offers it.
type prefetchRepo struct {
	*memRepo
}

func (r *prefetchRepo) LoadSpaceWithPrefetch(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, map[world.ChunkID]*world.SpaceProperties, error) {
	p, err := r.LoadSpace(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out := map[world.ChunkID]*world.SpaceProperties{}
	for _, t := range p.Exits {
		if !t.Resolved() {
			continue
		}
		np, err := r.LoadSpace(ctx, t.Chunk)
		if errors.Is(err, world.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		out[np.ChunkID] = np
	}
	return p, out, nil
}

func TestEnsureSpacePrefetchesNeighbors(t *testing.T) {
	genA, _, repo, _ := testStack(t)
	ctx := context.Background()
	root, err := genA.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)
	res, err := genA.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	target := res.Chunk.Children[0]

	// A fresh session over a prefetching repository pulls the space and
	// its resolved neighbors in one load.
	seed := world.Seed{Text: "generator test", Lore: "Nothing here is older than the dark."}
	store := world.NewStore(seed)
	genB := NewGenerator(Config{MinSpaces: 9, MaxSpaces: 12}, seed, store, &prefetchRepo{repo}, oracle.Disabled{}, nil, nil)

	// A record already resident must survive the prefetch.
	var doctored world.ChunkID
	if orig, err := repo.LoadSpace(ctx, target); err == nil {
		for _, tgt := range orig.Exits {
			if tgt.Resolved() {
				doctored = tgt.Chunk
				break
			}
		}
	}
	if doctored == "" {
		t.Fatalf("target %s has no resolved exits", target)
	}
	store.PutSpace(&world.SpaceProperties{ChunkID: doctored, Description: "already resident"})

	p, err := genB.EnsureSpace(ctx, target)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for label, tgt := range p.Exits {
		if !tgt.Resolved() {
			continue
		}
		np, ok := store.Space(tgt.Chunk)
		if !ok {
			t.Fatalf("neighbor %s through %q not prefetched", tgt.Chunk, label)
		}
		if tgt.Chunk == doctored && np.Description != "already resident" {
			t.Fatalf("prefetch clobbered a resident record")
		}
	}
}

func TestEnsureSpaceHealsLostRecord(t *testing.T) {
	gen, store, repo, _ := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)
	res, err := gen.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	victim := res.Chunk.Children[2]
	original, ok := store.Space(victim)
	if !ok {
		t.Fatalf("victim record missing before the test even starts")
	}

	// Lose the record everywhere but keep the chunk row, the state a
	// crash between chunk and space persistence leaves behind.
	store.DeleteSpace(victim)
	repo.dropSpace(victim)

	healed, err := gen.EnsureSpace(ctx, victim)
	if err != nil {
		t.Fatalf("heal: %v", err)
	}
	if !reflect.DeepEqual(healed, original) {
		t.Fatalf("healed record differs:\n%+v\n%+v", healed, original)
	}
	if _, err := repo.LoadSpace(ctx, victim); err != nil {
		t.Fatalf("healed record not persisted: %v", err)
	}
}

func TestEnsureSpaceHealsLostChunkRow(t *testing.T) {
	gen, store, repo, _ := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)
	res, err := gen.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	victim := res.Chunk.Children[1]
	store.DeleteChunk(victim)
	store.DeleteSpace(victim)
	repo.dropChunk(victim)
	repo.dropSpace(victim)

	if _, err := gen.EnsureSpace(ctx, victim); err != nil {
		t.Fatalf("heal: %v", err)
	}
	if _, ok := store.Chunk(victim); !ok {
		t.Fatalf("chunk row not healed")
	}
	if _, err := repo.LoadChunk(ctx, victim); err != nil {
		t.Fatalf("chunk row not persisted: %v", err)
	}
}

func TestGenerateChunkPersistenceFailure(t *testing.T) {
	gen, store, repo, _ := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	region, _ := root.ID.ChildAt(4, 4)

	cause := errors.New("disk full")
	repo.setFail(cause)
	if _, err := gen.GenerateChunk(ctx, region, ""); !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped %v", err, cause)
	}
	if _, ok := store.Chunk(region); ok {
		t.Fatalf("failed generation was published")
	}
	if gen.Cache().IsPending(region) {
		t.Fatalf("failed generation left id pending")
	}

	repo.setFail(nil)
	if _, err := gen.GenerateChunk(ctx, region, ""); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestGenerateChunkRejectsMalformedID(t *testing.T) {
	gen, _, _, _ := testStack(t)
	if _, err := gen.GenerateChunk(context.Background(), "bogus", ""); err == nil {
		t.Fatalf("malformed id accepted")
	}
}

func TestFillSpaceOnFirstEntry(t *testing.T) {
	gen, store, repo, _ := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)
	res, err := gen.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	target := res.Chunk.Children[0]

	first, err := gen.FillSpace(ctx, target)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if !first.Filled() {
		t.Fatalf("space still a stub after fill")
	}
	if published, _ := store.Space(target); published != first {
		t.Fatalf("fill result is not the published record")
	}
	durable, err := repo.LoadSpace(ctx, target)
	if err != nil {
		t.Fatalf("filled space not persisted: %v", err)
	}
	if durable.Description != first.Description {
		t.Fatalf("persisted description %q differs from %q", durable.Description, first.Description)
	}

	again, err := gen.FillSpace(ctx, target)
	if err != nil {
		t.Fatalf("refill: %v", err)
	}
	if again != first {
		t.Fatalf("second fill rebuilt an already filled space")
	}
}

func TestFillSpaceConcurrent(t *testing.T) {
	gen, store, _, _ := testStack(t)
	ctx := context.Background()
	root, err := gen.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sub := subzoneUnder(t, root.ID)
	res, err := gen.GenerateChunk(ctx, sub, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	target := res.Chunk.Children[3]

	const workers = 8
	results := make([]*world.SpaceProperties, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			p, err := gen.FillSpace(ctx, target)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = p
		}(i)
	}
	close(start)
	wg.Wait()

	final, ok := store.Space(target)
	if !ok || !final.Filled() {
		t.Fatalf("no filled record published")
	}
	for i, p := range results {
		if p == nil {
			continue
		}
		if p.Description != final.Description {
			t.Fatalf("worker %d saw description %q, published is %q", i, p.Description, final.Description)
		}
	}
}
