package oracle

import (
	"context"
	"errors"
)

// Oracle is the abstract text-completion service world generation
// leans on for lore derivation, space descriptions, and free-text
// exit parsing. Implementations must be safe for concurrent use.
// Callers treat every error as temporary unavailability and
// substitute deterministic content at the point of use.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrUnavailable marks oracle failures. Backends wrap transport
// errors with it so callers can errors.Is across implementations.
var ErrUnavailable = errors.New("oracle unavailable")
