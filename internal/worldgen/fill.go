package worldgen

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"everdeep.ai/internal/oracle"
	"everdeep.ai/internal/world"
)

// FillEngine turns a stub space into playable content on first entry.
// Filling is idempotent: a space with a description comes back
// untouched, so repeat entries are free.
type FillEngine struct {
	seed   world.Seed
	oracle oracle.Oracle
	logger *log.Logger
}

func NewFillEngine(seed world.Seed, o oracle.Oracle, logger *log.Logger) *FillEngine {
	return &FillEngine{seed: seed, oracle: o, logger: logger}
}

// Fill returns the completed properties for stub. The result is a new
// record; the input is never mutated. Oracle failures substitute the
// deterministic template, never an empty description.
func (e *FillEngine) Fill(ctx context.Context, stub *world.SpaceProperties, chunk *world.Chunk) *world.SpaceProperties {
	if stub.Filled() {
		return stub
	}
	out := stub.Clone()
	base := e.seed.Int64()
	id := string(stub.ChunkID)

	out.Brightness, out.Terrain = roleDefaults(base, id, stub.Role)
	out.Description = e.describe(ctx, stub, chunk)
	e.seedHazards(out, chunk, base, id)
	e.seedResources(out, chunk, base, id)
	out.SafeZone = stub.Role == world.RoleHub && chunk.HostileDensity < 0.3
	if out.Flags == nil {
		out.Flags = map[string]bool{}
	}
	return out
}

func roleDefaults(seed int64, id string, role world.Role) (brightness int, terrain world.Terrain) {
	h := func(n int) int { return hashPick(seed, "fill:"+id, n) }
	switch role {
	case world.RoleFrontier:
		return 20 + h(11), world.TerrainDifficult
	case world.RoleHub:
		return 75 + h(26), world.TerrainNormal
	case world.RoleBoss:
		return 10 + h(16), world.TerrainNormal
	case world.RoleDeadEnd:
		t := world.TerrainNormal
		if h(3) == 0 {
			t = world.TerrainDifficult
		}
		return 30 + h(21), t
	case world.RoleQuestable:
		return 40 + h(21), world.TerrainNormal
	case world.RoleBranching:
		return 45 + h(26), world.TerrainNormal
	default:
		return 50 + h(21), world.TerrainNormal
	}
}

func (e *FillEngine) describe(ctx context.Context, stub *world.SpaceProperties, chunk *world.Chunk) string {
	exits := visibleExitLabels(stub)
	register := roleRegister[stub.Role.String()]
	if register == "" {
		register = "passage"
	}

	prompt := describePrompt(chunk, register, exits)
	reply, err := e.oracle.Complete(ctx, prompt)
	reply = strings.TrimSpace(reply)
	if err == nil && reply != "" {
		return reply
	}
	if e.logger != nil && err != nil {
		e.logger.Printf("fill fallback for %s: %v", stub.ChunkID, err)
	}

	adj := biomeAdjectives[hashPick(e.seed.Int64(), "desc:"+string(stub.ChunkID), len(biomeAdjectives))]
	if len(exits) == 0 {
		return fmt.Sprintf("A %s %s in the %s.", adj, register, chunk.Biome)
	}
	return fmt.Sprintf("A %s %s in the %s. Ways lead %s.", adj, register, chunk.Biome, strings.Join(exits, ", "))
}

func describePrompt(chunk *world.Chunk, register string, exits []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Area lore: %s\n", chunk.Lore)
	fmt.Fprintf(&b, "Biome: %s\n", chunk.Biome)
	fmt.Fprintf(&b, "Character: %s\n", register)
	if len(exits) > 0 {
		fmt.Fprintf(&b, "Exits lead %s.\n", strings.Join(exits, ", "))
	}
	b.WriteString("Write a short second-person description of this space, two sentences at most.")
	return b.String()
}

// visibleExitLabels lists non-hidden exits sorted for stable output.
func visibleExitLabels(p *world.SpaceProperties) []string {
	var out []string
	for label, t := range p.Exits {
		if t.Hidden {
			continue
		}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func (e *FillEngine) seedHazards(out *world.SpaceProperties, chunk *world.Chunk, base int64, id string) {
	roll := hashPick(base, "hazard:"+id, 100)
	if float64(roll) >= chunk.HostileDensity*100 {
		return
	}
	table := hazardsByRole[out.Role.String()]
	if len(table) == 0 {
		table = []string{"skittering in the dark"}
	}
	out.Hazards = append(out.Hazards, table[hashPick(base, "hazardpick:"+id, len(table))])
	if out.Role == world.RoleBoss {
		// Lairs are never a single-threat room.
		for _, h := range table {
			if h != out.Hazards[0] {
				out.Hazards = append(out.Hazards, h)
				break
			}
		}
	}
}

func (e *FillEngine) seedResources(out *world.SpaceProperties, chunk *world.Chunk, base int64, id string) {
	table := resourcesByBiome[chunk.Biome]
	if len(table) == 0 {
		return
	}
	count := hashPick(base, "rescount:"+id, 3)
	for i := 0; i < count; i++ {
		kind := table[hashPick(base, fmt.Sprintf("res:%s:%d", id, i), len(table))]
		qty := 1 + hashPick(base, fmt.Sprintf("resqty:%s:%d", id, i), 3)
		out.Resources = append(out.Resources, world.ResourceNode{Kind: kind, Qty: qty})
	}
}
