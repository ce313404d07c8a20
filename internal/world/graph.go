package world

// Role classifies a topology node and drives content fill defaults.
type Role uint8

const (
	RoleLinear Role = iota
	RoleBranching
	RoleHub
	RoleDeadEnd
	RoleBoss
	RoleFrontier
	RoleQuestable
)

func (r Role) String() string {
	switch r {
	case RoleLinear:
		return "LINEAR"
	case RoleBranching:
		return "BRANCHING"
	case RoleHub:
		return "HUB"
	case RoleDeadEnd:
		return "DEAD_END"
	case RoleBoss:
		return "BOSS"
	case RoleFrontier:
		return "FRONTIER"
	case RoleQuestable:
		return "QUESTABLE"
	default:
		return "UNKNOWN"
	}
}

func ParseRole(s string) (Role, bool) {
	switch s {
	case "LINEAR":
		return RoleLinear, true
	case "BRANCHING":
		return RoleBranching, true
	case "HUB":
		return RoleHub, true
	case "DEAD_END":
		return RoleDeadEnd, true
	case "BOSS":
		return RoleBoss, true
	case "FRONTIER":
		return RoleFrontier, true
	case "QUESTABLE":
		return RoleQuestable, true
	default:
		return RoleLinear, false
	}
}

type Point struct {
	X, Y int
}

// GraphNode is the pre-content topology unit, one per eventual SPACE.
// Node 0 is the entry node of its set.
type GraphNode struct {
	Index int
	Pos   Point
	Role  Role
	Edges []GraphEdge
}

// GraphEdge is directed in storage; every generated edge has a
// reciprocal at the target created in the same pass. Hidden and
// HiddenDC agree on both halves of a logical edge.
type GraphEdge struct {
	To         int
	Dir        string
	Hidden     bool
	HiddenDC   int
	Conditions []Condition
}

func (n *GraphNode) Degree() int {
	return len(n.Edges)
}

func (n *GraphNode) EdgeTo(to int) (GraphEdge, bool) {
	for _, e := range n.Edges {
		if e.To == to {
			return e, true
		}
	}
	return GraphEdge{}, false
}
