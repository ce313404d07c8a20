package world

import "testing"

func TestDirectionOppositesAreSymmetric(t *testing.T) {
	for _, dir := range Directions {
		op, ok := OppositeDirection(dir)
		if !ok {
			t.Fatalf("%q has no opposite", dir)
		}
		back, ok := OppositeDirection(op)
		if !ok || back != dir {
			t.Fatalf("opposite(%q)=%q but opposite(%q)=%q", dir, op, op, back)
		}
	}
}

func TestDirectionDeltaRoundTrip(t *testing.T) {
	for _, dir := range Directions {
		dx, dy, ok := DirectionDelta(dir)
		if dir == "up" || dir == "down" {
			if ok {
				t.Fatalf("%q should carry no lattice delta", dir)
			}
			continue
		}
		if !ok {
			t.Fatalf("%q should carry a lattice delta", dir)
		}
		got, ok := DirectionFromDelta(dx, dy)
		if !ok || got != dir {
			t.Fatalf("delta round trip for %q gave %q", dir, got)
		}
		// Walking the opposite delta lands back where it started.
		op, _ := OppositeDirection(dir)
		ox, oy, _ := DirectionDelta(op)
		if dx+ox != 0 || dy+oy != 0 {
			t.Fatalf("%q and %q deltas do not cancel", dir, op)
		}
	}
}

func TestCanonicalDirection(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"n", "north", true},
		{"north", "north", true},
		{"sw", "southwest", true},
		{"u", "up", true},
		{"ladder", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := CanonicalDirection(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("CanonicalDirection(%q) = (%q,%v), want (%q,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
