package worldgen

import (
	"reflect"
	"testing"

	"everdeep.ai/internal/world"
)

// link adds the two halves of one logical edge.
func link(nodes []world.GraphNode, a, b int, la, lb string) {
	nodes[a].Edges = append(nodes[a].Edges, world.GraphEdge{To: b, Dir: la})
	nodes[b].Edges = append(nodes[b].Edges, world.GraphEdge{To: a, Dir: lb})
}

func makeNodes(n int) []world.GraphNode {
	nodes := make([]world.GraphNode, n)
	for i := range nodes {
		nodes[i].Index = i
	}
	return nodes
}

// Bipartite 3+3 with every cross pair linked: degree 3 everywhere,
// connected, plenty of loops.
func denseSix() []world.GraphNode {
	nodes := makeNodes(6)
	labels := []string{"north", "east", "south", "west", "up", "down", "arch", "tunnel", "gate"}
	li := 0
	for a := 0; a < 3; a++ {
		for b := 3; b < 6; b++ {
			link(nodes, a, b, labels[li], labels[li]+" back")
			li++
		}
	}
	nodes[1].Role = world.RoleFrontier
	nodes[4].Role = world.RoleFrontier
	return nodes
}

func hasReason(res Result, want string) bool {
	for _, r := range res.Reasons {
		if r == want {
			return true
		}
	}
	return false
}

func TestValidateAccepts(t *testing.T) {
	res := Validate(denseSix())
	if !res.OK {
		t.Fatalf("dense set rejected: %v", res.Reasons)
	}
	if len(res.Reasons) != 0 {
		t.Fatalf("accepted set carries reasons: %v", res.Reasons)
	}
}

func TestValidateDisconnected(t *testing.T) {
	nodes := makeNodes(6)
	link(nodes, 0, 1, "north", "south")
	link(nodes, 1, 2, "east", "west")
	link(nodes, 2, 0, "up", "down")
	link(nodes, 3, 4, "north", "south")
	link(nodes, 4, 5, "east", "west")
	link(nodes, 5, 3, "up", "down")
	res := Validate(nodes)
	if res.OK {
		t.Fatalf("disconnected set accepted")
	}
	if !hasReason(res, "graph not fully connected") {
		t.Fatalf("reasons = %v", res.Reasons)
	}
}

func TestValidateTree(t *testing.T) {
	nodes := makeNodes(5)
	link(nodes, 0, 1, "north", "south")
	link(nodes, 0, 2, "east", "west")
	link(nodes, 0, 3, "south", "north")
	link(nodes, 0, 4, "west", "east")
	res := Validate(nodes)
	if res.OK {
		t.Fatalf("tree accepted")
	}
	if !hasReason(res, "no loops found (graph is a tree)") {
		t.Fatalf("reasons = %v", res.Reasons)
	}
}

func TestValidateAverageDegree(t *testing.T) {
	// Five-node ring: connected with a loop but average degree 2.
	nodes := makeNodes(5)
	for i := 0; i < 5; i++ {
		link(nodes, i, (i+1)%5, "east", "west")
	}
	nodes[0].Role = world.RoleFrontier
	nodes[2].Role = world.RoleFrontier
	res := Validate(nodes)
	if res.OK {
		t.Fatalf("sparse ring accepted")
	}
	if !hasReason(res, "average degree 2.00 below 3.0") {
		t.Fatalf("reasons = %v", res.Reasons)
	}
}

func TestValidateFrontierCount(t *testing.T) {
	nodes := denseSix()
	nodes[4].Role = world.RoleLinear
	res := Validate(nodes)
	if res.OK {
		t.Fatalf("single-frontier set accepted")
	}
	if !hasReason(res, "frontier count 1 below 2") {
		t.Fatalf("reasons = %v", res.Reasons)
	}
}

func TestValidateEmpty(t *testing.T) {
	if res := Validate(nil); res.OK {
		t.Fatalf("empty set accepted")
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	nodes := denseSix()
	before := make([]world.GraphNode, len(nodes))
	copy(before, nodes)
	for i := range before {
		before[i].Edges = append([]world.GraphEdge(nil), nodes[i].Edges...)
	}
	Validate(nodes)
	if !reflect.DeepEqual(nodes, before) {
		t.Fatalf("validation mutated its input")
	}
}
