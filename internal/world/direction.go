package world

// Canonical compass tokens in display order. up/down only ever appear
// as space-level exit labels; the sibling lattice is planar.
var Directions = []string{
	"north", "south", "east", "west",
	"northeast", "northwest", "southeast", "southwest",
	"up", "down",
}

var dirAlias = map[string]string{
	"n": "north", "s": "south", "e": "east", "w": "west",
	"ne": "northeast", "nw": "northwest", "se": "southeast", "sw": "southwest",
	"u": "up", "d": "down",
}

var dirOpposite = map[string]string{
	"north": "south", "south": "north",
	"east": "west", "west": "east",
	"northeast": "southwest", "southwest": "northeast",
	"northwest": "southeast", "southeast": "northwest",
	"up": "down", "down": "up",
}

// y grows northward, x grows eastward.
var dirDelta = map[string][2]int{
	"north": {0, 1}, "south": {0, -1},
	"east": {1, 0}, "west": {-1, 0},
	"northeast": {1, 1}, "northwest": {-1, 1},
	"southeast": {1, -1}, "southwest": {-1, -1},
}

// CanonicalDirection maps a token or abbreviation to its canonical
// form. ok is false for non-directional words.
func CanonicalDirection(s string) (string, bool) {
	if full, ok := dirAlias[s]; ok {
		return full, true
	}
	if _, ok := dirOpposite[s]; ok {
		return s, true
	}
	return "", false
}

// OppositeDirection returns the reciprocal label for a canonical
// direction. ok is false for descriptive labels, whose inverses the
// generator assigns itself.
func OppositeDirection(dir string) (string, bool) {
	op, ok := dirOpposite[dir]
	return op, ok
}

// DirectionDelta returns the lattice offset of a planar direction.
func DirectionDelta(dir string) (dx, dy int, ok bool) {
	d, ok := dirDelta[dir]
	if !ok {
		return 0, 0, false
	}
	return d[0], d[1], true
}

// DirectionFromDelta labels the step between two lattice cells that
// differ by at most one in each axis.
func DirectionFromDelta(dx, dy int) (string, bool) {
	for dir, d := range dirDelta {
		if d[0] == dx && d[1] == dy {
			return dir, true
		}
	}
	return "", false
}
