package worldgen

import (
	"fmt"

	"everdeep.ai/internal/world"
)

// Result of validating a candidate node set.
type Result struct {
	OK      bool
	Reasons []string
}

// Validate runs the four acceptance checks on a candidate topology:
// full connectivity from the entry node, at least one loop, average
// degree at or above 3.0, and at least two Frontier nodes. Pure: the
// input is never mutated, so concurrent calls on independent sets are
// safe.
func Validate(nodes []world.GraphNode) Result {
	var reasons []string

	if !fullyConnected(nodes) {
		reasons = append(reasons, "graph not fully connected")
	}
	if !hasLoop(nodes) {
		reasons = append(reasons, "no loops found (graph is a tree)")
	}
	if avg := averageDegree(nodes); avg < 3.0 {
		reasons = append(reasons, fmt.Sprintf("average degree %.2f below 3.0", avg))
	}
	if fc := frontierCount(nodes); fc < 2 {
		reasons = append(reasons, fmt.Sprintf("frontier count %d below 2", fc))
	}

	return Result{OK: len(reasons) == 0, Reasons: reasons}
}

func fullyConnected(nodes []world.GraphNode) bool {
	if len(nodes) == 0 {
		return false
	}
	seen := make([]bool, len(nodes))
	seen[0] = true
	queue := []int{0}
	count := 1
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range nodes[cur].Edges {
			if e.To >= 0 && e.To < len(nodes) && !seen[e.To] {
				seen[e.To] = true
				count++
				queue = append(queue, e.To)
			}
		}
	}
	return count == len(nodes)
}

// hasLoop DFS-walks the undirected graph looking for a back edge to
// an already-visited node other than the immediate parent.
func hasLoop(nodes []world.GraphNode) bool {
	visited := make([]bool, len(nodes))
	type frame struct {
		node, parent int
	}
	for start := range nodes {
		if visited[start] {
			continue
		}
		stack := []frame{{node: start, parent: -1}}
		visited[start] = true
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			parentSeen := false
			for _, e := range nodes[f.node].Edges {
				if e.To < 0 || e.To >= len(nodes) {
					continue
				}
				// One edge back to the parent is the reciprocal,
				// not a cycle; a second one is.
				if e.To == f.parent && !parentSeen {
					parentSeen = true
					continue
				}
				if visited[e.To] {
					return true
				}
				visited[e.To] = true
				stack = append(stack, frame{node: e.To, parent: f.node})
			}
		}
	}
	return false
}

func averageDegree(nodes []world.GraphNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	endpoints := 0
	for _, n := range nodes {
		endpoints += len(n.Edges)
	}
	return float64(endpoints) / float64(len(nodes))
}

func frontierCount(nodes []world.GraphNode) int {
	count := 0
	for _, n := range nodes {
		if n.Role == world.RoleFrontier {
			count++
		}
	}
	return count
}
