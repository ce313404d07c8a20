package world

// Level is the depth of a chunk in the hierarchy. WORLD is the root;
// SPACE is the unit a player actually stands in.
type Level uint8

const (
	LevelWorld Level = iota
	LevelRegion
	LevelZone
	LevelSubzone
	LevelSpace
)

func (l Level) String() string {
	switch l {
	case LevelWorld:
		return "WORLD"
	case LevelRegion:
		return "REGION"
	case LevelZone:
		return "ZONE"
	case LevelSubzone:
		return "SUBZONE"
	case LevelSpace:
		return "SPACE"
	default:
		return "UNKNOWN"
	}
}

// Child returns the next level down. ok is false at SPACE.
func (l Level) Child() (Level, bool) {
	if l >= LevelSpace {
		return l, false
	}
	return l + 1, true
}
