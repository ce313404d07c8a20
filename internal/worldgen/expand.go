package worldgen

import (
	"context"
	"fmt"
	"strings"

	"everdeep.ai/internal/world"
)

const pendingPrefix = "pending:"

// PendingPlaceholder encodes a frontier exit awaiting its neighbor:
// the subzone id that must exist first plus the travel direction.
func PendingPlaceholder(neighbor world.ChunkID, dir string) string {
	return pendingPrefix + string(neighbor) + ":" + dir
}

// ParsePlaceholder splits a pending marker. ok is false for resolved
// or foreign strings.
func ParsePlaceholder(s string) (neighbor world.ChunkID, dir string, ok bool) {
	if !strings.HasPrefix(s, pendingPrefix) {
		return "", "", false
	}
	rest := s[len(pendingPrefix):]
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return world.ChunkID(rest[:i]), rest[i+1:], true
}

// ResolvePlaceholder is the second linking pass, run when a frontier
// exit is first traversed: it materializes the neighbor subzone,
// rewrites the origin exit to a real arrival space, and installs the
// reciprocal exit back. Idempotent: an already resolved exit returns
// its target untouched, and concurrent resolvers converge on the same
// rewrite.
func (g *Generator) ResolvePlaceholder(ctx context.Context, originID world.ChunkID, label string) (world.ChunkID, error) {
	origin, err := g.EnsureSpace(ctx, originID)
	if err != nil {
		return "", err
	}
	t, ok := origin.Exits[label]
	if !ok {
		return "", fmt.Errorf("space %s has no exit %q", originID, label)
	}
	if t.Resolved() {
		return t.Chunk, nil
	}
	neighborID, dir, ok := ParsePlaceholder(t.Placeholder)
	if !ok {
		return "", fmt.Errorf("exit %q of %s carries malformed placeholder %q", label, originID, t.Placeholder)
	}

	neighbor, err := g.EnsureChunk(ctx, neighborID, dir)
	if err != nil {
		return "", fmt.Errorf("expand frontier of %s: %w", originID, err)
	}
	arrivalID, err := g.pickArrival(ctx, neighbor, originID)
	if err != nil {
		return "", err
	}

	// The origin rewrite is the linearization point: whichever
	// resolver lands first wins, and a racer that finds the exit
	// already resolved adopts that target instead of its own pick.
	var won world.ChunkID
	updatedOrigin, ok := g.store.UpdateSpace(originID, func(p *world.SpaceProperties) {
		cur := p.Exits[label]
		if cur.Resolved() {
			won = cur.Chunk
			return
		}
		cur.Chunk = arrivalID
		cur.Placeholder = ""
		p.Exits[label] = cur
	})
	if !ok {
		return "", fmt.Errorf("space %s not resident while resolving %q", originID, label)
	}
	if won != "" {
		return won, nil
	}

	back, _ := world.OppositeDirection(dir)
	originSubzone, _ := originID.Parent()
	updatedArrival, ok := g.store.UpdateSpace(arrivalID, func(p *world.SpaceProperties) {
		// Prefer resolving the arrival's own placeholder aimed back
		// at the origin subzone; otherwise add a fresh reciprocal.
		for l, e := range p.Exits {
			if e.Resolved() {
				continue
			}
			nb, _, ok := ParsePlaceholder(e.Placeholder)
			if ok && nb == originSubzone {
				e.Chunk = originID
				e.Placeholder = ""
				p.Exits[l] = e
				return
			}
		}
		for _, e := range p.Exits {
			if e.Chunk == originID {
				// A concurrent resolver already linked us back.
				return
			}
		}
		l := freeLabel(p.Exits, back)
		p.Exits[l] = world.EdgeTarget{Chunk: originID}
	})
	if !ok {
		return "", fmt.Errorf("arrival %s not resident while linking back to %s", arrivalID, originID)
	}

	if err := g.repo.SaveSpaces(ctx, []*world.SpaceProperties{updatedOrigin, updatedArrival}); err != nil {
		return "", fmt.Errorf("persist frontier link %s to %s: %w", originID, arrivalID, err)
	}
	return arrivalID, nil
}

// pickArrival chooses where a traveler crossing into subzone lands:
// the lowest-index frontier space whose placeholder points back at
// the traveler's own subzone, or the entry space when none does.
func (g *Generator) pickArrival(ctx context.Context, subzone *world.Chunk, originID world.ChunkID) (world.ChunkID, error) {
	if len(subzone.Children) == 0 {
		return "", fmt.Errorf("subzone %s has no spaces", subzone.ID)
	}
	originSubzone, _ := originID.Parent()
	for _, sid := range subzone.Children {
		p, err := g.EnsureSpace(ctx, sid)
		if err != nil {
			return "", err
		}
		if p.Role != world.RoleFrontier {
			continue
		}
		for _, e := range p.Exits {
			if e.Resolved() {
				continue
			}
			if nb, _, ok := ParsePlaceholder(e.Placeholder); ok && nb == originSubzone {
				return sid, nil
			}
		}
	}
	return subzone.Children[0], nil
}

// freeLabel returns preferred if unused, else the first free compass
// direction, else a numbered passage.
func freeLabel(exits map[string]world.EdgeTarget, preferred string) string {
	if preferred != "" {
		if _, taken := exits[preferred]; !taken {
			return preferred
		}
	}
	for _, dir := range world.Directions {
		if _, taken := exits[dir]; !taken {
			return dir
		}
	}
	for i := 2; ; i++ {
		l := fmt.Sprintf("passage %d", i)
		if _, taken := exits[l]; !taken {
			return l
		}
	}
}
