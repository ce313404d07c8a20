package world

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkID is a dotted lineage path, one segment per hierarchy level:
//
//	w1a2b3c4.r<x>_<y>.z<x>_<y>.s<x>_<y>.p<idx>
//
// The id encodes its own level (segment count) and its full ancestry
// (every prefix is an ancestor id). REGION/ZONE/SUBZONE segments carry
// lattice coordinates, so sibling ids in a compass direction are
// derivable without any lookup.
type ChunkID string

var levelPrefix = [...]byte{'w', 'r', 'z', 's', 'p'}

func WorldID(seed Seed) ChunkID {
	return ChunkID("w" + seed.Tag())
}

func (id ChunkID) Level() Level {
	return Level(strings.Count(string(id), "."))
}

// Parent strips the last segment. ok is false for the world root.
func (id ChunkID) Parent() (ChunkID, bool) {
	i := strings.LastIndex(string(id), ".")
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

func (id ChunkID) Root() ChunkID {
	if i := strings.Index(string(id), "."); i >= 0 {
		return id[:i]
	}
	return id
}

// ChildAt returns the id of the child cell at lattice position (x, y).
// Valid for WORLD through ZONE ids; SUBZONE children are spaces and
// use SpaceID instead.
func (id ChunkID) ChildAt(x, y int) (ChunkID, bool) {
	lv := id.Level()
	if lv >= LevelSubzone {
		return "", false
	}
	return ChunkID(fmt.Sprintf("%s.%c%d_%d", id, levelPrefix[lv+1], x, y)), true
}

// SpaceID returns the id of the space for topology node index node.
func (id ChunkID) SpaceID(node int) (ChunkID, bool) {
	if id.Level() != LevelSubzone || node < 0 {
		return "", false
	}
	return ChunkID(fmt.Sprintf("%s.p%d", id, node)), true
}

// Coords returns the lattice coordinates of the last segment. The
// world root and SPACE ids carry none.
func (id ChunkID) Coords() (x, y int, ok bool) {
	seg := id.lastSegment()
	if len(seg) < 4 {
		return 0, 0, false
	}
	switch seg[0] {
	case 'r', 'z', 's':
	default:
		return 0, 0, false
	}
	rest := seg[1:]
	us := strings.IndexByte(rest, '_')
	if us < 0 {
		return 0, 0, false
	}
	x, err := strconv.Atoi(rest[:us])
	if err != nil {
		return 0, 0, false
	}
	y, err = strconv.Atoi(rest[us+1:])
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

// SpaceIndex returns the topology node index of a SPACE id.
func (id ChunkID) SpaceIndex() (int, bool) {
	seg := id.lastSegment()
	if len(seg) < 2 || seg[0] != 'p' {
		return 0, false
	}
	n, err := strconv.Atoi(seg[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Neighbor returns the sibling id offset by (dx, dy) on the parent's
// lattice. Only coordinate-bearing segments have lattice neighbors.
func (id ChunkID) Neighbor(dx, dy int) (ChunkID, bool) {
	x, y, ok := id.Coords()
	if !ok {
		return "", false
	}
	parent, ok := id.Parent()
	if !ok {
		return "", false
	}
	return parent.ChildAt(x+dx, y+dy)
}

// Valid reports whether every segment carries the prefix its depth
// demands and parses cleanly.
func (id ChunkID) Valid() bool {
	segs := strings.Split(string(id), ".")
	if len(segs) == 0 || len(segs) > len(levelPrefix) {
		return false
	}
	for i, seg := range segs {
		if len(seg) < 2 || seg[0] != levelPrefix[i] {
			return false
		}
		prefix := ChunkID(strings.Join(segs[:i+1], "."))
		switch Level(i) {
		case LevelWorld:
		case LevelSpace:
			if _, ok := prefix.SpaceIndex(); !ok {
				return false
			}
		default:
			if _, _, ok := prefix.Coords(); !ok {
				return false
			}
		}
	}
	return true
}

func (id ChunkID) lastSegment() string {
	s := string(id)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}
