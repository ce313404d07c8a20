package worldgen

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"everdeep.ai/internal/world"
)

type GraphConfig struct {
	MaxAttempts      int
	LoopEdgeFraction float64
	MinAvgDegree     float64
	MaxAvgDegree     float64
	HiddenEdgeMin    float64
	HiddenEdgeMax    float64
	HiddenDCMin      int
	HiddenDCMax      int
	DeadEndChance    float64
	QuestableChance  float64
	FrontierCount    int
}

func (c *GraphConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.LoopEdgeFraction <= 0 {
		c.LoopEdgeFraction = 0.45
	}
	if c.MinAvgDegree <= 0 {
		c.MinAvgDegree = 3.0
	}
	if c.MaxAvgDegree <= 0 {
		c.MaxAvgDegree = 3.5
	}
	if c.HiddenEdgeMin <= 0 {
		c.HiddenEdgeMin = 0.15
	}
	if c.HiddenEdgeMax <= 0 {
		c.HiddenEdgeMax = 0.25
	}
	if c.HiddenDCMin <= 0 {
		c.HiddenDCMin = 10
	}
	if c.HiddenDCMax <= 0 {
		c.HiddenDCMax = 30
	}
	if c.DeadEndChance <= 0 {
		c.DeadEndChance = 0.2
	}
	if c.QuestableChance <= 0 {
		c.QuestableChance = 0.15
	}
	if c.FrontierCount < 2 {
		c.FrontierCount = 2
	}
}

// GraphGenerator produces validated space topologies. Generation is
// fully deterministic for a given seed: every retry re-rolls from a
// derived stream, never from shared state.
type GraphGenerator struct {
	cfg GraphConfig
}

func NewGraphGenerator(cfg GraphConfig) *GraphGenerator {
	cfg.applyDefaults()
	return &GraphGenerator{cfg: cfg}
}

// Generate returns a node set passing Validate, or ErrGenerationExhausted
// once the retry budget is spent. attempts reports how many rolls the
// accepted set took.
func (g *GraphGenerator) Generate(seed int64, n int, layout Layout, difficulty int) (nodes []world.GraphNode, attempts int, err error) {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		rng := rand.New(rand.NewSource(attemptSeed(seed, attempt)))
		nodes := g.assemble(rng, n, layout, difficulty)
		res := Validate(nodes)
		if res.OK {
			return nodes, attempt + 1, nil
		}
		lastErr = &ValidationError{Reasons: res.Reasons}
	}
	return nil, g.cfg.MaxAttempts, fmt.Errorf("%w: %d attempts, last: %v", ErrGenerationExhausted, g.cfg.MaxAttempts, lastErr)
}

type logicalEdge struct {
	a, b int
	tree bool
}

func (g *GraphGenerator) assemble(rng *rand.Rand, n int, layout Layout, difficulty int) []world.GraphNode {
	p := buildPlan(layout, n, rng)
	n = len(p.cells)
	nodes := make([]world.GraphNode, n)
	for i := range nodes {
		nodes[i] = world.GraphNode{Index: i, Pos: p.cells[i]}
	}
	if n < 2 {
		return nodes
	}

	edges := g.pickEdges(rng, n, p.cands)
	adj := buildAdjacency(n, edges)
	g.assignLabels(nodes, edges)
	g.assignRoles(rng, nodes, adj)
	g.markHidden(rng, nodes, edges)
	g.attachConditions(rng, nodes, edges, difficulty)
	return nodes
}

// pickEdges runs Kruskal over shuffled candidates for the spanning
// tree, then augments with loop edges until the average degree sits
// in the configured band. The tree itself stays free of hidden flags
// and conditions, so the base topology is always openly walkable.
func (g *GraphGenerator) pickEdges(rng *rand.Rand, n int, cands [][2]int) []logicalEdge {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	uf := newUnionFind(n)
	var edges []logicalEdge
	var pool [][2]int
	for _, ci := range order {
		c := cands[ci]
		if uf.union(c[0], c[1]) {
			edges = append(edges, logicalEdge{a: c[0], b: c[1], tree: true})
		} else {
			pool = append(pool, c)
		}
	}

	treeCount := len(edges)
	extraTarget := int(math.Round(g.cfg.LoopEdgeFraction * float64(treeCount)))
	added := 0
	for _, c := range pool {
		avg := 2 * float64(len(edges)) / float64(n)
		if avg >= g.cfg.MinAvgDegree {
			if added >= extraTarget {
				break
			}
			if 2*float64(len(edges)+1)/float64(n) > g.cfg.MaxAvgDegree {
				break
			}
		}
		edges = append(edges, logicalEdge{a: c[0], b: c[1]})
		added++
	}
	return edges
}

func buildAdjacency(n int, edges []logicalEdge) [][]int {
	adj := make([][]int, n)
	for _, e := range edges {
		adj[e.a] = append(adj[e.a], e.b)
		adj[e.b] = append(adj[e.b], e.a)
	}
	return adj
}

// assignLabels writes the directional exit label pair for every
// logical edge. Unit lattice deltas label cleanly by compass; BSP
// room centers can collide, falling back to descriptive pairs.
func (g *GraphGenerator) assignLabels(nodes []world.GraphNode, edges []logicalEdge) {
	used := make([]map[string]bool, len(nodes))
	for i := range used {
		used[i] = map[string]bool{}
	}
	for _, e := range edges {
		dx := sign(nodes[e.b].Pos.X - nodes[e.a].Pos.X)
		dy := sign(nodes[e.b].Pos.Y - nodes[e.a].Pos.Y)
		la, okA := world.DirectionFromDelta(dx, dy)
		lb, okB := world.DirectionFromDelta(-dx, -dy)
		if !okA || !okB || used[e.a][la] || used[e.b][lb] {
			la, lb = nextLabelPair(used[e.a], used[e.b])
		}
		used[e.a][la] = true
		used[e.b][lb] = true
		nodes[e.a].Edges = append(nodes[e.a].Edges, world.GraphEdge{To: e.b, Dir: la})
		nodes[e.b].Edges = append(nodes[e.b].Edges, world.GraphEdge{To: e.a, Dir: lb})
	}
}

// assignRoles classifies nodes: BFS-farthest node from the entry is
// the single Boss, boundary-most nodes become Frontier, the highest
// degrees (4+) become Hubs, then DeadEnd/Questable sprinkles, then
// Linear or Branching by degree.
func (g *GraphGenerator) assignRoles(rng *rand.Rand, nodes []world.GraphNode, adj [][]int) {
	n := len(nodes)
	dist := bfsDistances(adj, 0)
	taken := make([]bool, n)

	boss := 0
	for i := 1; i < n; i++ {
		if dist[i] > dist[boss] {
			boss = i
		}
	}
	nodes[boss].Role = world.RoleBoss
	taken[boss] = true

	// Boundary-most: farthest from the shape's centroid.
	var cx, cy float64
	for _, nd := range nodes {
		cx += float64(nd.Pos.X)
		cy += float64(nd.Pos.Y)
	}
	cx /= float64(n)
	cy /= float64(n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		da := centroidDist(nodes[order[a]].Pos, cx, cy)
		db := centroidDist(nodes[order[b]].Pos, cx, cy)
		if da != db {
			return da > db
		}
		return order[a] < order[b]
	})
	placed := 0
	for _, i := range order {
		if placed >= g.cfg.FrontierCount {
			break
		}
		if taken[i] {
			continue
		}
		nodes[i].Role = world.RoleFrontier
		taken[i] = true
		placed++
	}

	byDegree := make([]int, n)
	for i := range byDegree {
		byDegree[i] = i
	}
	sort.Slice(byDegree, func(a, b int) bool {
		da, db := len(adj[byDegree[a]]), len(adj[byDegree[b]])
		if da != db {
			return da > db
		}
		return byDegree[a] < byDegree[b]
	})
	hubs := 0
	for _, i := range byDegree {
		if hubs >= 2 {
			break
		}
		if taken[i] || len(adj[i]) < 4 {
			continue
		}
		nodes[i].Role = world.RoleHub
		taken[i] = true
		hubs++
	}

	maxDist := 0
	for _, d := range dist {
		if d > maxDist {
			maxDist = d
		}
	}
	for i := 0; i < n; i++ {
		if taken[i] {
			continue
		}
		deg := len(adj[i])
		switch {
		case deg == 1 && rng.Float64() < g.cfg.DeadEndChance:
			nodes[i].Role = world.RoleDeadEnd
		case deg >= 2 && deg <= 3 && midDepth(dist[i], maxDist) && rng.Float64() < g.cfg.QuestableChance:
			nodes[i].Role = world.RoleQuestable
		case deg >= 3:
			nodes[i].Role = world.RoleBranching
		default:
			nodes[i].Role = world.RoleLinear
		}
	}
}

func midDepth(d, max int) bool {
	if max < 3 {
		return false
	}
	return d >= max/3 && d <= 2*max/3
}

// markHidden flags 15-25% of logical edges, biased toward edges that
// touch DeadEnd or Boss nodes, each with a perception difficulty in
// the configured range. A node always keeps at least one visible
// edge. Both halves of a logical edge share the flag and difficulty.
func (g *GraphGenerator) markHidden(rng *rand.Rand, nodes []world.GraphNode, edges []logicalEdge) {
	m := len(edges)
	if m == 0 {
		return
	}
	frac := g.cfg.HiddenEdgeMin + rng.Float64()*(g.cfg.HiddenEdgeMax-g.cfg.HiddenEdgeMin)
	target := int(math.Round(frac * float64(m)))
	if target < 1 {
		target = 1
	}

	visible := make([]int, len(nodes))
	for _, e := range edges {
		visible[e.a]++
		visible[e.b]++
	}

	type weighted struct {
		idx, w int
	}
	var pool []weighted
	for i, e := range edges {
		w := 1
		ra, rb := nodes[e.a].Role, nodes[e.b].Role
		if ra == world.RoleDeadEnd || ra == world.RoleBoss || rb == world.RoleDeadEnd || rb == world.RoleBoss {
			w = 3
		}
		pool = append(pool, weighted{idx: i, w: w})
	}

	hidden := 0
	for hidden < target && len(pool) > 0 {
		total := 0
		for _, c := range pool {
			total += c.w
		}
		roll := rng.Intn(total)
		pick := 0
		for i, c := range pool {
			roll -= c.w
			if roll < 0 {
				pick = i
				break
			}
		}
		e := edges[pool[pick].idx]
		pool = append(pool[:pick], pool[pick+1:]...)
		if visible[e.a] <= 1 || visible[e.b] <= 1 {
			continue
		}
		dc := g.cfg.HiddenDCMin + rng.Intn(g.cfg.HiddenDCMax-g.cfg.HiddenDCMin+1)
		setEdgeHidden(nodes, e.a, e.b, dc)
		visible[e.a]--
		visible[e.b]--
		hidden++
	}
}

func setEdgeHidden(nodes []world.GraphNode, a, b, dc int) {
	for i := range nodes[a].Edges {
		if nodes[a].Edges[i].To == b {
			nodes[a].Edges[i].Hidden = true
			nodes[a].Edges[i].HiddenDC = dc
		}
	}
	for i := range nodes[b].Edges {
		if nodes[b].Edges[i].To == a {
			nodes[b].Edges[i].Hidden = true
			nodes[b].Edges[i].HiddenDC = dc
		}
	}
}

// attachConditions gates a difficulty-scaled share of loop edges with
// skill checks or item requirements. Tree edges never carry
// conditions, so every space stays reachable bare-handed.
func (g *GraphGenerator) attachConditions(rng *rand.Rand, nodes []world.GraphNode, edges []logicalEdge, difficulty int) {
	chance := 0.05 * float64(difficulty)
	if chance > 0.3 {
		chance = 0.3
	}
	if chance <= 0 {
		return
	}
	for _, e := range edges {
		if e.tree || rng.Float64() >= chance {
			continue
		}
		var cond world.Condition
		if rng.Intn(2) == 0 {
			skill := gateSkills[rng.Intn(len(gateSkills))]
			cond = world.SkillCheck(skill, 8+rng.Intn(8)+difficulty)
		} else {
			cond = world.ItemRequired(gateItems[rng.Intn(len(gateItems))])
		}
		setEdgeCondition(nodes, e.a, e.b, cond)
	}
}

func setEdgeCondition(nodes []world.GraphNode, a, b int, cond world.Condition) {
	for i := range nodes[a].Edges {
		if nodes[a].Edges[i].To == b {
			nodes[a].Edges[i].Conditions = append(nodes[a].Edges[i].Conditions, cond)
		}
	}
	for i := range nodes[b].Edges {
		if nodes[b].Edges[i].To == a {
			nodes[b].Edges[i].Conditions = append(nodes[b].Edges[i].Conditions, cond)
		}
	}
}

func bfsDistances(adj [][]int, from int) []int {
	dist := make([]int, len(adj))
	for i := range dist {
		dist[i] = -1
	}
	dist[from] = 0
	queue := []int{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range adj[cur] {
			if dist[nb] < 0 {
				dist[nb] = dist[cur] + 1
				queue = append(queue, nb)
			}
		}
	}
	return dist
}

func centroidDist(p world.Point, cx, cy float64) float64 {
	dx := float64(p.X) - cx
	dy := float64(p.Y) - cy
	return dx*dx + dy*dy
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	return true
}
