package world

// Terrain categories with fixed traversal weights.
type Terrain uint8

const (
	TerrainNormal Terrain = iota
	TerrainDifficult
	TerrainImpassable
)

func (t Terrain) String() string {
	switch t {
	case TerrainNormal:
		return "NORMAL"
	case TerrainDifficult:
		return "DIFFICULT"
	case TerrainImpassable:
		return "IMPASSABLE"
	default:
		return "UNKNOWN"
	}
}

// TraversalCost is the relative move-cost multiplier. 0 means the
// terrain cannot be entered at all.
func (t Terrain) TraversalCost() float64 {
	switch t {
	case TerrainNormal:
		return 1.0
	case TerrainDifficult:
		return 2.0
	default:
		return 0
	}
}

// InjuryRisk is the chance weight of taking harm while crossing.
func (t Terrain) InjuryRisk() float64 {
	switch t {
	case TerrainNormal:
		return 0
	case TerrainDifficult:
		return 0.15
	default:
		return 1.0
	}
}

func (t Terrain) Passable() bool {
	return t != TerrainImpassable
}

// EdgeTarget is where an exit leads. Exactly one of Chunk or
// Placeholder is set: a placeholder names a not-yet-generated
// neighbor and is swapped for the real id by the linking pass.
type EdgeTarget struct {
	Chunk       ChunkID
	Placeholder string
	Hidden      bool
	HiddenDC    int // perception difficulty, 10..30 when hidden
	Conditions  []Condition
}

func (t EdgeTarget) Resolved() bool {
	return t.Chunk != ""
}

type ResourceNode struct {
	Kind string
	Qty  int
}

// SpaceProperties is the player-facing content of a SPACE chunk.
// Description == "" marks an unfilled stub awaiting content fill.
// Role is fixed at topology emission and drives the fill defaults.
type SpaceProperties struct {
	ChunkID      ChunkID
	Role         Role
	Description  string
	Exits        map[string]EdgeTarget
	Brightness   int // 0..100
	Terrain      Terrain
	Hazards      []string
	Resources    []ResourceNode
	Occupants    []string
	DroppedItems []string
	Flags        map[string]bool
	SafeZone     bool
}

func (p *SpaceProperties) Filled() bool {
	return p.Description != ""
}

func (p *SpaceProperties) Clone() *SpaceProperties {
	cp := *p
	if p.Exits != nil {
		cp.Exits = make(map[string]EdgeTarget, len(p.Exits))
		for k, v := range p.Exits {
			if v.Conditions != nil {
				conds := make([]Condition, len(v.Conditions))
				copy(conds, v.Conditions)
				v.Conditions = conds
			}
			cp.Exits[k] = v
		}
	}
	cp.Hazards = cloneStrings(p.Hazards)
	if p.Resources != nil {
		cp.Resources = make([]ResourceNode, len(p.Resources))
		copy(cp.Resources, p.Resources)
	}
	cp.Occupants = cloneStrings(p.Occupants)
	cp.DroppedItems = cloneStrings(p.DroppedItems)
	if p.Flags != nil {
		cp.Flags = make(map[string]bool, len(p.Flags))
		for k, v := range p.Flags {
			cp.Flags[k] = v
		}
	}
	return &cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
