package worldgen

import (
	"crypto/sha256"
	"encoding/binary"

	"everdeep.ai/internal/world"
)

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// chunkSeed derives the per-chunk generation seed from the world seed
// and the chunk's id, so every chunk draws from its own stable stream.
func chunkSeed(base int64, id world.ChunkID) int64 {
	h := sha256.Sum256([]byte(id))
	v := uint64(base) ^ binary.LittleEndian.Uint64(h[:8])
	return int64(mix64(v))
}

// attemptSeed varies the stream per retry without touching the base.
func attemptSeed(seed int64, attempt int) int64 {
	return int64(mix64(uint64(seed) + uint64(attempt)*0x9e3779b97f4a7c15))
}

// hashPick is a cheap stable roll in [0, n) for derivations that need
// no rand.Rand stream.
func hashPick(seed int64, salt string, n int) int {
	if n <= 0 {
		return 0
	}
	h := sha256.Sum256([]byte(salt))
	v := uint64(seed) ^ binary.LittleEndian.Uint64(h[:8])
	return int(mix64(v) % uint64(n))
}
