package worldgen

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"everdeep.ai/internal/world"
)

func countRoles(nodes []world.GraphNode) map[world.Role]int {
	out := map[world.Role]int{}
	for _, n := range nodes {
		out[n.Role]++
	}
	return out
}

func TestTwelveNodeFloodFill(t *testing.T) {
	g := NewGraphGenerator(GraphConfig{})
	nodes, attempts, err := g.Generate(813044, 12, LayoutFloodFill, 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if attempts < 1 {
		t.Fatalf("attempts = %d", attempts)
	}
	if len(nodes) != 12 {
		t.Fatalf("node count = %d, want 12", len(nodes))
	}

	res := Validate(nodes)
	if !res.OK {
		t.Fatalf("validation failed: %v", res.Reasons)
	}
	roles := countRoles(nodes)
	if roles[world.RoleBoss] != 1 {
		t.Fatalf("boss count = %d, want exactly 1", roles[world.RoleBoss])
	}
	if roles[world.RoleFrontier] < 2 {
		t.Fatalf("frontier count = %d, want at least 2", roles[world.RoleFrontier])
	}

	hidden := 0
	for _, n := range nodes {
		for _, e := range n.Edges {
			if !e.Hidden {
				continue
			}
			hidden++
			if e.HiddenDC < 10 || e.HiddenDC > 30 {
				t.Fatalf("hidden edge difficulty %d out of [10,30]", e.HiddenDC)
			}
		}
	}
	if hidden == 0 {
		t.Fatalf("expected at least one hidden edge")
	}
}

func TestGeneratedSetsAcrossLayouts(t *testing.T) {
	g := NewGraphGenerator(GraphConfig{})
	for _, layout := range []Layout{LayoutGrid, LayoutBSP, LayoutFloodFill} {
		for _, n := range []int{6, 9, 12, 16} {
			for seed := int64(1); seed <= 5; seed++ {
				nodes, _, err := g.Generate(seed*7919, n, layout, 2)
				if err != nil {
					t.Fatalf("%s n=%d seed=%d: %v", layout, n, seed, err)
				}
				res := Validate(nodes)
				if !res.OK {
					t.Fatalf("%s n=%d seed=%d rejected: %v", layout, n, seed, res.Reasons)
				}
				if avg := averageDegree(nodes); avg < 3.0 {
					t.Fatalf("%s n=%d seed=%d average degree %.2f", layout, n, seed, avg)
				}
			}
		}
	}
}

func TestReciprocalEdges(t *testing.T) {
	g := NewGraphGenerator(GraphConfig{})
	for _, layout := range []Layout{LayoutGrid, LayoutBSP, LayoutFloodFill} {
		nodes, _, err := g.Generate(424242, 12, layout, 1)
		if err != nil {
			t.Fatalf("%s: %v", layout, err)
		}
		for _, n := range nodes {
			for _, e := range n.Edges {
				back, ok := nodes[e.To].EdgeTo(n.Index)
				if !ok {
					t.Fatalf("%s: edge %d->%d has no reciprocal", layout, n.Index, e.To)
				}
				if op, isCompass := world.OppositeDirection(e.Dir); isCompass && back.Dir != op {
					t.Fatalf("%s: edge %d->%d dir %q reciprocal %q, want %q",
						layout, n.Index, e.To, e.Dir, back.Dir, op)
				}
				if back.Hidden != e.Hidden || back.HiddenDC != e.HiddenDC {
					t.Fatalf("%s: hidden state differs across halves of %d<->%d", layout, n.Index, e.To)
				}
			}
		}
	}
}

func TestRoleDegreeInvariants(t *testing.T) {
	g := NewGraphGenerator(GraphConfig{})
	for seed := int64(1); seed <= 10; seed++ {
		nodes, _, err := g.Generate(seed*104729, 14, LayoutGrid, 4)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		for _, n := range nodes {
			switch n.Role {
			case world.RoleHub:
				if n.Degree() < 4 {
					t.Fatalf("seed %d: hub node %d degree %d", seed, n.Index, n.Degree())
				}
			case world.RoleDeadEnd:
				if n.Degree() != 1 {
					t.Fatalf("seed %d: dead end node %d degree %d", seed, n.Index, n.Degree())
				}
			}
		}
	}
}

func TestExitLabelsUniquePerNode(t *testing.T) {
	g := NewGraphGenerator(GraphConfig{})
	for _, layout := range []Layout{LayoutGrid, LayoutBSP, LayoutFloodFill} {
		nodes, _, err := g.Generate(99991, 13, layout, 2)
		if err != nil {
			t.Fatalf("%s: %v", layout, err)
		}
		for _, n := range nodes {
			seen := map[string]bool{}
			for _, e := range n.Edges {
				if e.Dir == "" {
					t.Fatalf("%s: node %d has an unlabeled edge", layout, n.Index)
				}
				if seen[e.Dir] {
					t.Fatalf("%s: node %d label %q reused", layout, n.Index, e.Dir)
				}
				seen[e.Dir] = true
			}
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, _, err := NewGraphGenerator(GraphConfig{}).Generate(5, 12, LayoutFloodFill, 2)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, _, err := NewGraphGenerator(GraphConfig{}).Generate(5, 12, LayoutFloodFill, 2)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different topologies")
	}
}

func TestGenerateExhaustsBudget(t *testing.T) {
	// An average-degree floor no candidate set can reach.
	g := NewGraphGenerator(GraphConfig{MinAvgDegree: 9.0, MaxAvgDegree: 9.5, MaxAttempts: 3})
	_, attempts, err := g.Generate(1, 8, LayoutGrid, 1)
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Fatalf("want ErrGenerationExhausted, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if !strings.Contains(err.Error(), "average degree") {
		t.Fatalf("error %q does not carry the failing check", err)
	}
}
