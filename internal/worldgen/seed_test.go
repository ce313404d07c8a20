package worldgen

import (
	"testing"

	"everdeep.ai/internal/world"
)

func TestChunkSeedStablePerID(t *testing.T) {
	base := world.Seed{Text: "the drowned vault"}.Int64()

	ids := []world.ChunkID{
		"w1",
		"w1.r0_0",
		"w1.r0_0.z0_0",
		"w1.r0_0.z0_0.s0_0",
		"w1.r0_0.z0_0.s0_0.p0",
		"w1.r0_0.z0_0.s0_0.p1",
	}
	seen := map[int64]world.ChunkID{}
	for _, id := range ids {
		a := chunkSeed(base, id)
		b := chunkSeed(base, id)
		if a != b {
			t.Fatalf("chunkSeed(%s) not stable: %d vs %d", id, a, b)
		}
		if prev, dup := seen[a]; dup {
			t.Fatalf("chunkSeed collision: %s and %s both map to %d", prev, id, a)
		}
		seen[a] = id
	}

	other := world.Seed{Text: "a different world"}.Int64()
	if chunkSeed(base, ids[0]) == chunkSeed(other, ids[0]) {
		t.Fatalf("different world seeds produced the same chunk seed")
	}
}

func TestAttemptSeedVariesPerRetry(t *testing.T) {
	base := chunkSeed(42, "w1.r0_0.z0_0.s0_0")
	seen := map[int64]int{}
	for attempt := 0; attempt < 8; attempt++ {
		s := attemptSeed(base, attempt)
		if s != attemptSeed(base, attempt) {
			t.Fatalf("attemptSeed(%d) not stable", attempt)
		}
		if prev, dup := seen[s]; dup {
			t.Fatalf("attempts %d and %d share seed %d", prev, attempt, s)
		}
		seen[s] = attempt
	}
}

func TestHashPickRangeAndStability(t *testing.T) {
	for _, n := range []int{1, 2, 7, 100} {
		for _, salt := range []string{"difficulty", "biome", "w1.r0_0", ""} {
			got := hashPick(99, salt, n)
			if got < 0 || got >= n {
				t.Fatalf("hashPick(99, %q, %d) = %d out of range", salt, n, got)
			}
			if got != hashPick(99, salt, n) {
				t.Fatalf("hashPick(99, %q, %d) not stable", salt, n)
			}
		}
	}
	if got := hashPick(99, "anything", 0); got != 0 {
		t.Fatalf("hashPick with n=0 returned %d", got)
	}

	// Salts should spread across the range, not collapse to one value.
	counts := map[int]int{}
	for _, salt := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		counts[hashPick(7, salt, 4)]++
	}
	if len(counts) < 2 {
		t.Fatalf("hashPick degenerate over varied salts: %v", counts)
	}
}
