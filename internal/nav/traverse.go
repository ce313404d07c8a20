package nav

import (
	"errors"
	"fmt"

	"everdeep.ai/internal/world"
)

// ErrBlocked reports an exit that resolved fine but refuses the
// actual move. The wrapping message names the failed requirement.
var ErrBlocked = errors.New("traversal blocked")

// Actor carries what a traversal check may ask about: skill scores
// and held item tags.
type Actor struct {
	Skills map[string]int
	Items  map[string]bool
}

func (a Actor) skill(name string) int {
	if a.Skills == nil {
		return 0
	}
	return a.Skills[name]
}

func (a Actor) holds(item string) bool {
	return a.Items != nil && a.Items[item]
}

// CheckTraversal decides whether actor may take an already resolved
// exit. Resolution and eligibility are separate on purpose: a player
// can see a gated way out without qualifying for it. Returns nil when
// every condition passes.
func CheckTraversal(target world.EdgeTarget, actor Actor) error {
	for _, c := range target.Conditions {
		switch c.Kind {
		case world.CondSkillCheck:
			if actor.skill(c.Skill) < c.Threshold {
				return fmt.Errorf("%s: %w", c.Describe(), ErrBlocked)
			}
		case world.CondItemRequired:
			if !actor.holds(c.Item) {
				return fmt.Errorf("%s: %w", c.Describe(), ErrBlocked)
			}
		default:
			return fmt.Errorf("unknown condition: %w", ErrBlocked)
		}
	}
	return nil
}

// CheckEntry decides whether a destination space accepts the actor at
// all. Impassable terrain blocks regardless of conditions on the way
// in.
func CheckEntry(p *world.SpaceProperties) error {
	if !p.Terrain.Passable() {
		return fmt.Errorf("the way is impassable: %w", ErrBlocked)
	}
	return nil
}
