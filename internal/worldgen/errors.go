package worldgen

import (
	"errors"
	"strings"
)

// ErrGenerationExhausted reports that no candidate topology passed
// validation within the retry budget. Fatal to the triggering request
// only; callers must not treat it as fatal to the process.
var ErrGenerationExhausted = errors.New("generation exhausted")

// ValidationError carries the human-readable reasons a candidate set
// was rejected. Always recoverable by regenerating.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}
