package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Seed is the singleton world root record: the seed string plus the
// global lore every generation call inherits from. Never mutated after
// world initialization.
type Seed struct {
	Text string
	Lore string
}

// Int64 folds the seed text into the integer every deterministic
// generator derives its randomness from.
func (s Seed) Int64() int64 {
	h := sha256.Sum256([]byte(s.Text))
	return int64(binary.LittleEndian.Uint64(h[:8]))
}

// Tag is a short stable fingerprint of the seed text, embedded in the
// world root id so ids from different seeds never collide.
func (s Seed) Tag() string {
	h := sha256.Sum256([]byte(s.Text))
	return hex.EncodeToString(h[:4])
}
