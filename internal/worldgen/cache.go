package worldgen

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"everdeep.ai/internal/world"
)

// GenerationCache serializes generation per chunk id and bounds the
// in-memory working set. Records themselves live in the store arena;
// the cache owns only the recency list and evicts cold ids out of the
// arena, where they stay durable in the repository. Pending ids are
// pinned and never evicted.
type GenerationCache struct {
	mu      sync.Mutex
	cap     int
	ll      *list.List // front is most recently used
	items   map[world.ChunkID]*list.Element
	pending map[world.ChunkID]struct{}
	store   *world.Store

	group singleflight.Group
}

func NewGenerationCache(capacity int, store *world.Store) *GenerationCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &GenerationCache{
		cap:     capacity,
		ll:      list.New(),
		items:   map[world.ChunkID]*list.Element{},
		pending: map[world.ChunkID]struct{}{},
		store:   store,
	}
}

type flightResult struct {
	chunk *world.Chunk
	nodes []world.GraphNode
}

// Do runs gen at most once across concurrent callers of the same id;
// all callers observe the one result. ctx gates only the wait: a
// started generation runs to completion, so an abandoned request
// never rolls back a chunk later callers will reuse. gen must record
// its result with Complete after persisting it.
func (c *GenerationCache) Do(ctx context.Context, id world.ChunkID, gen func() (*world.Chunk, []world.GraphNode, error)) (*world.Chunk, []world.GraphNode, error) {
	ch := c.group.DoChan(string(id), func() (interface{}, error) {
		c.Pending(id)
		defer c.clearPending(id)
		chunk, nodes, err := gen()
		if err != nil {
			return nil, err
		}
		return flightResult{chunk: chunk, nodes: nodes}, nil
	})
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, res.Err
		}
		fr := res.Val.(flightResult)
		return fr.chunk, fr.nodes, nil
	}
}

// Pending pins id against eviction while its generation is in flight.
func (c *GenerationCache) Pending(id world.ChunkID) {
	c.mu.Lock()
	c.pending[id] = struct{}{}
	c.mu.Unlock()
}

func (c *GenerationCache) IsPending(id world.ChunkID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

func (c *GenerationCache) clearPending(id world.ChunkID) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Complete publishes the generated chunk to the arena and admits its
// id to the recency list, evicting overflow. Callers persist before
// completing; once recorded here the chunk is reusable by any later
// request.
func (c *GenerationCache) Complete(id world.ChunkID, chunk *world.Chunk) {
	c.store.PutChunk(chunk)
	c.mu.Lock()
	delete(c.pending, id)
	c.touch(id)
	c.evictOverflow()
	c.mu.Unlock()
}

// Get returns the chunk if it is resident, refreshing its recency.
func (c *GenerationCache) Get(id world.ChunkID) (*world.Chunk, bool) {
	chunk, ok := c.store.Chunk(id)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	c.touch(id)
	c.mu.Unlock()
	return chunk, true
}

func (c *GenerationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// touch admits or refreshes id. Callers hold mu.
func (c *GenerationCache) touch(id world.ChunkID) {
	if el, ok := c.items[id]; ok {
		c.ll.MoveToFront(el)
		return
	}
	c.items[id] = c.ll.PushFront(id)
}

// evictOverflow walks from the cold end dropping unpinned ids until
// the list fits. Callers hold mu. If every overflow id is pinned the
// list is left over capacity rather than touching pending work.
func (c *GenerationCache) evictOverflow() {
	el := c.ll.Back()
	for c.ll.Len() > c.cap && el != nil {
		prev := el.Prev()
		id := el.Value.(world.ChunkID)
		if _, pinned := c.pending[id]; !pinned {
			c.ll.Remove(el)
			delete(c.items, id)
			c.store.DeleteChunk(id)
			if id.Level() == world.LevelSpace {
				c.store.DeleteSpace(id)
			}
		}
		el = prev
	}
}
