package worldgen

import (
	"context"
	"fmt"
	"log"
	"strings"

	"everdeep.ai/internal/oracle"
	"everdeep.ai/internal/world"
)

// LoreEngine derives a child chunk's lore and biome from its parent
// plus a directional hint. The oracle shapes the prose when it is
// reachable; biome selection and the fallback prose are always
// deterministic, so offline worlds reproduce exactly.
type LoreEngine struct {
	oracle oracle.Oracle
	logger *log.Logger
}

func NewLoreEngine(o oracle.Oracle, logger *log.Logger) *LoreEngine {
	return &LoreEngine{oracle: o, logger: logger}
}

type LoreRequest struct {
	Seed       world.Seed
	Parent     *world.Chunk // nil only for the world root
	ChildID    world.ChunkID
	Level      world.Level
	DirHint    string // "" when no directional choice led here
	Difficulty int
}

type LoreResult struct {
	Lore     string
	Biome    string
	Fallback bool
}

// Derive never fails: oracle trouble degrades to the deterministic
// template and is reported through Fallback.
func (e *LoreEngine) Derive(ctx context.Context, req LoreRequest) LoreResult {
	biome := e.deriveBiome(req)
	if req.Parent == nil {
		// The root keeps the seed's global lore verbatim.
		return LoreResult{Lore: req.Seed.Lore, Biome: biome}
	}

	prompt := lorePrompt(req, biome)
	reply, err := e.oracle.Complete(ctx, prompt)
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		if e.logger != nil && err != nil {
			e.logger.Printf("lore fallback for %s: %v", req.ChildID, err)
		}
		return LoreResult{Lore: fallbackLore(req, biome), Biome: biome, Fallback: true}
	}
	return LoreResult{Lore: reply, Biome: biome}
}

// deriveBiome is oracle-free. Regions roll fresh; deeper levels
// inherit with a one-in-four drift so zones mostly match their
// region.
func (e *LoreEngine) deriveBiome(req LoreRequest) string {
	seed := req.Seed.Int64()
	fresh := biomes[hashPick(seed, "biome:"+string(req.ChildID), len(biomes))]
	if req.Parent == nil || req.Parent.Biome == "" || req.Level <= world.LevelRegion {
		return fresh
	}
	if hashPick(seed, "drift:"+string(req.ChildID), 4) == 0 {
		return fresh
	}
	return req.Parent.Biome
}

func lorePrompt(req LoreRequest, biome string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "World lore: %s\n", req.Seed.Lore)
	fmt.Fprintf(&b, "Parent %s lore: %s\n", req.Parent.Level, req.Parent.Lore)
	if req.DirHint != "" {
		fmt.Fprintf(&b, "Direction of travel: %s\n", req.DirHint)
	}
	fmt.Fprintf(&b, "Biome: %s\n", biome)
	flavor := hintFlavor[req.DirHint]
	if flavor == "" {
		flavor = "stranger"
	}
	fmt.Fprintf(&b, "Write two sentences of lore for the new %s, making it %s than its parent.", req.Level, flavor)
	return b.String()
}

func fallbackLore(req LoreRequest, biome string) string {
	adj := biomeAdjectives[hashPick(req.Seed.Int64(), "adj:"+string(req.ChildID), len(biomeAdjectives))]
	flavor := hintFlavor[req.DirHint]
	if flavor == "" {
		flavor = "stranger"
	}
	echo := req.Seed.Lore
	if req.Parent != nil && req.Parent.Lore != "" {
		echo = req.Parent.Lore
	}
	if i := strings.IndexByte(echo, '.'); i > 0 {
		echo = echo[:i]
	}
	return fmt.Sprintf("A %s stretch of %s opens here, %s than what came before. It remembers: %s.", adj, biome, flavor, echo)
}
