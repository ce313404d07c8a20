package worldgen

import (
	"math"
	"math/rand"
	"sort"

	"everdeep.ai/internal/world"
)

// Layout selects how raw space positions and candidate adjacency are
// laid down before graph assembly.
type Layout uint8

const (
	LayoutGrid Layout = iota
	LayoutBSP
	LayoutFloodFill
)

func (l Layout) String() string {
	switch l {
	case LayoutGrid:
		return "grid"
	case LayoutBSP:
		return "bsp"
	case LayoutFloodFill:
		return "floodfill"
	default:
		return "unknown"
	}
}

func ParseLayout(s string) (Layout, bool) {
	switch s {
	case "grid":
		return LayoutGrid, true
	case "bsp":
		return LayoutBSP, true
	case "floodfill":
		return LayoutFloodFill, true
	default:
		return LayoutGrid, false
	}
}

// plan is the raw material handed to graph assembly: one cell per
// eventual node plus candidate undirected edges (index pairs, i < j).
// Every plan's candidate set is connected by construction.
type plan struct {
	cells []world.Point
	cands [][2]int
}

func buildPlan(layout Layout, n int, rng *rand.Rand) plan {
	switch layout {
	case LayoutBSP:
		return bspPlan(n, rng)
	case LayoutFloodFill:
		return floodFillPlan(n, rng)
	default:
		return gridPlan(n)
	}
}

// gridPlan packs n cells row-major into a near-square rectangle and
// offers the full 8-neighborhood as candidates.
func gridPlan(n int) plan {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	cells := make([]world.Point, 0, n)
	for i := 0; i < n; i++ {
		cells = append(cells, world.Point{X: i % cols, Y: i / cols})
	}
	return plan{cells: cells, cands: latticeCandidates(cells)}
}

// floodFillPlan grows organically outward from the origin: each step
// claims a random unclaimed neighbor of the shape so far. Density of
// the result varies with the rng; candidates are the 8-neighborhood.
func floodFillPlan(n int, rng *rand.Rand) plan {
	claimed := map[world.Point]bool{{X: 0, Y: 0}: true}
	cells := []world.Point{{X: 0, Y: 0}}
	frontier := neighborhood(world.Point{X: 0, Y: 0})

	for len(cells) < n && len(frontier) > 0 {
		i := rng.Intn(len(frontier))
		p := frontier[i]
		frontier = append(frontier[:i], frontier[i+1:]...)
		if claimed[p] {
			continue
		}
		claimed[p] = true
		cells = append(cells, p)
		for _, q := range neighborhood(p) {
			if !claimed[q] {
				frontier = append(frontier, q)
			}
		}
	}
	return plan{cells: cells, cands: latticeCandidates(cells)}
}

type bspRect struct {
	x, y, w, h int
}

// bspPlan splits a rectangle recursively until it has n leaves (or
// leaves get too small to split), then uses each leaf's center as a
// cell. Candidates link each room to its nearest predecessors, so
// deltas are not unit steps and direction labels can collide; label
// assignment resolves that later.
func bspPlan(n int, rng *rand.Rand) plan {
	const minSide = 3
	// A leaf stops splitting only below 2*minSide on both axes, so an
	// unsplittable leaf covers at most (2*minSide-1)^2 cells. Sizing the
	// square so that worst-case packing still yields n leaves keeps the
	// split loop from stalling short.
	side := (2*minSide - 1) * int(math.Ceil(math.Sqrt(float64(n))))
	leaves := []bspRect{{x: 0, y: 0, w: side, h: side}}

	for len(leaves) < n {
		// Split the largest splittable leaf.
		best := -1
		for i, r := range leaves {
			if r.w < 2*minSide && r.h < 2*minSide {
				continue
			}
			if best < 0 || r.w*r.h > leaves[best].w*leaves[best].h {
				best = i
			}
		}
		if best < 0 {
			break
		}
		r := leaves[best]
		var a, b bspRect
		if r.w >= r.h {
			cut := minSide + rng.Intn(r.w-2*minSide+1)
			a = bspRect{x: r.x, y: r.y, w: cut, h: r.h}
			b = bspRect{x: r.x + cut, y: r.y, w: r.w - cut, h: r.h}
		} else {
			cut := minSide + rng.Intn(r.h-2*minSide+1)
			a = bspRect{x: r.x, y: r.y, w: r.w, h: cut}
			b = bspRect{x: r.x, y: r.y + cut, w: r.w, h: r.h - cut}
		}
		leaves[best] = a
		leaves = append(leaves, b)
	}

	if len(leaves) > n {
		leaves = leaves[:n]
	}
	cells := make([]world.Point, len(leaves))
	for i, r := range leaves {
		cells[i] = world.Point{X: r.x + r.w/2, Y: r.y + r.h/2}
	}

	// Nearest-predecessor chain keeps the candidate graph connected;
	// extra near links give the augmentation pass room to work.
	var cands [][2]int
	seen := map[[2]int]bool{}
	add := func(i, j int) {
		if i == j {
			return
		}
		if i > j {
			i, j = j, i
		}
		k := [2]int{i, j}
		if !seen[k] {
			seen[k] = true
			cands = append(cands, k)
		}
	}
	for i := 1; i < len(cells); i++ {
		type distTo struct {
			d, j int
		}
		var ds []distTo
		for j := 0; j < len(cells); j++ {
			if j == i {
				continue
			}
			ds = append(ds, distTo{d: cheby(cells[i], cells[j]), j: j})
		}
		sort.Slice(ds, func(a, b int) bool {
			if ds[a].d != ds[b].d {
				return ds[a].d < ds[b].d
			}
			return ds[a].j < ds[b].j
		})
		links := 4
		if links > len(ds) {
			links = len(ds)
		}
		nearestPrior := -1
		for _, d := range ds {
			if d.j < i {
				nearestPrior = d.j
				break
			}
		}
		if nearestPrior >= 0 {
			add(i, nearestPrior)
		}
		for _, d := range ds[:links] {
			add(i, d.j)
		}
	}
	return plan{cells: cells, cands: cands}
}

func neighborhood(p world.Point) []world.Point {
	out := make([]world.Point, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out = append(out, world.Point{X: p.X + dx, Y: p.Y + dy})
		}
	}
	return out
}

// latticeCandidates pairs every two cells within Chebyshev distance 1.
func latticeCandidates(cells []world.Point) [][2]int {
	at := make(map[world.Point]int, len(cells))
	for i, p := range cells {
		at[p] = i
	}
	var cands [][2]int
	for i, p := range cells {
		for _, q := range neighborhood(p) {
			j, ok := at[q]
			if ok && i < j {
				cands = append(cands, [2]int{i, j})
			}
		}
	}
	return cands
}

func cheby(a, b world.Point) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}
