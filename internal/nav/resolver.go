package nav

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"everdeep.ai/internal/oracle"
	"everdeep.ai/internal/world"
)

// ErrUnclear reports an intent that matched no exit through any
// resolution phase. Surfaced to the player as a shrug, never a crash.
var ErrUnclear = errors.New("intent does not match any exit")

const maxFuzzyDistance = 2

// Options tune one resolution call.
type Options struct {
	// Perception reveals hidden exits whose difficulty it meets.
	// Zero keeps every hidden exit out of the candidate set.
	Perception int
}

// Resolution is a successful match. Target may still refuse the
// actual move: condition checks happen at traversal time, not here.
type Resolution struct {
	Label  string
	Target world.EdgeTarget
	Oracle bool // phase three produced the match
}

// Resolver turns free-text movement intents into exits, three phases
// short-circuiting: exact token match, fuzzy match within edit
// distance 2, then the oracle with the exit list in hand.
type Resolver struct {
	oracle oracle.Oracle
	logger *log.Logger
}

func NewResolver(o oracle.Oracle, logger *log.Logger) *Resolver {
	return &Resolver{oracle: o, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, intent string, exits map[string]world.EdgeTarget, opts Options) (Resolution, error) {
	norm := strings.ToLower(strings.TrimSpace(intent))
	if norm == "" {
		return Resolution{}, fmt.Errorf("empty intent: %w", ErrUnclear)
	}

	visible := candidateExits(exits, opts.Perception)
	if len(visible) == 0 {
		return Resolution{}, fmt.Errorf("%q: no exits here: %w", intent, ErrUnclear)
	}

	// Phase one: the label itself, or a canonical token for it.
	if t, ok := visible[norm]; ok {
		return Resolution{Label: norm, Target: t}, nil
	}
	if full, ok := world.CanonicalDirection(norm); ok {
		if t, ok := visible[full]; ok {
			return Resolution{Label: full, Target: t}, nil
		}
	}

	// Phase two: closest label within the typo budget, but only when
	// the winner is unambiguous.
	if label, ok := fuzzyMatch(norm, visible); ok {
		return Resolution{Label: label, Target: visible[label]}, nil
	}

	// Phase three: hand the intent and the exit list to the oracle.
	label, err := r.askOracle(ctx, norm, visible)
	if err != nil {
		return Resolution{}, fmt.Errorf("%q: %w", intent, ErrUnclear)
	}
	return Resolution{Label: label, Target: visible[label], Oracle: true}, nil
}

// candidateExits drops hidden exits the perception score does not
// reveal.
func candidateExits(exits map[string]world.EdgeTarget, perception int) map[string]world.EdgeTarget {
	out := make(map[string]world.EdgeTarget, len(exits))
	for label, t := range exits {
		if t.Hidden && perception < t.HiddenDC {
			continue
		}
		out[label] = t
	}
	return out
}

// fuzzyMatch finds the unique closest label within maxFuzzyDistance,
// so "nroth" lands on "north" but a tie between two different labels
// stays unresolved and falls through to the oracle.
func fuzzyMatch(norm string, visible map[string]world.EdgeTarget) (string, bool) {
	best, bestLabel := maxFuzzyDistance+1, ""
	ambiguous := false
	for label := range visible {
		d := editDistance(norm, label)
		switch {
		case d < best:
			best, bestLabel, ambiguous = d, label, false
		case d == best && label != bestLabel:
			ambiguous = true
		}
	}
	if best > maxFuzzyDistance || ambiguous {
		return "", false
	}
	return bestLabel, true
}

// askOracle sends the intent plus candidate labels and accepts only
// the two-token answer protocol. Anything else, and any oracle
// failure, is an unclear intent.
func (r *Resolver) askOracle(ctx context.Context, norm string, visible map[string]world.EdgeTarget) (string, error) {
	labels := make([]string, 0, len(visible))
	for label := range visible {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	fmt.Fprintf(&b, "A player says: %q\n", norm)
	fmt.Fprintf(&b, "The exits here are: %s\n", strings.Join(labels, ", "))
	b.WriteString("Answer EXIT:<label> naming one of those exits, or UNCLEAR.")

	reply, err := r.oracle.Complete(ctx, b.String())
	if err != nil {
		if r.logger != nil && !errors.Is(err, oracle.ErrUnavailable) {
			r.logger.Printf("exit oracle: %v", err)
		}
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "UNCLEAR" {
		return "", ErrUnclear
	}
	rest, ok := strings.CutPrefix(reply, "EXIT:")
	if !ok {
		return "", ErrUnclear
	}
	label := strings.ToLower(strings.TrimSpace(rest))
	if _, ok := visible[label]; !ok {
		return "", ErrUnclear
	}
	return label, nil
}
