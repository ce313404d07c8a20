package ws

import (
	"errors"
	"sort"

	"everdeep.ai/internal/game"
	"everdeep.ai/internal/nav"
	"everdeep.ai/internal/oracle"
	"everdeep.ai/internal/protocol"
	"everdeep.ai/internal/world"
	"everdeep.ai/internal/worldgen"
)

func viewPayload(v *game.View) protocol.ViewPayload {
	exits := make([]protocol.ExitPayload, 0, len(v.Exits))
	for _, e := range v.Exits {
		exits = append(exits, protocol.ExitPayload{
			Label:    e.Label,
			Hidden:   e.Hidden,
			Resolved: e.Resolved,
		})
	}
	return protocol.ViewPayload{
		SpaceID:     string(v.SpaceID),
		Description: v.Description,
		Brightness:  v.Brightness,
		Terrain:     v.Terrain,
		SafeZone:    v.SafeZone,
		Exits:       exits,
		Hazards:     v.Hazards,
		Occupants:   v.Occupants,
		Items:       v.Items,
	}
}

func spacePayload(p *world.SpaceProperties) protocol.SpacePayload {
	exits := make([]protocol.ExitDetailPayload, 0, len(p.Exits))
	for label, t := range p.Exits {
		d := protocol.ExitDetailPayload{
			Label:       label,
			Target:      string(t.Chunk),
			Placeholder: t.Placeholder,
			Hidden:      t.Hidden,
			HiddenDC:    t.HiddenDC,
		}
		for _, c := range t.Conditions {
			d.Conditions = append(d.Conditions, c.Describe())
		}
		exits = append(exits, d)
	}
	sort.Slice(exits, func(i, j int) bool { return exits[i].Label < exits[j].Label })

	resources := make([]protocol.ResourcePayload, 0, len(p.Resources))
	for _, r := range p.Resources {
		resources = append(resources, protocol.ResourcePayload{Kind: r.Kind, Qty: r.Qty})
	}
	return protocol.SpacePayload{
		SpaceID:      string(p.ChunkID),
		Role:         p.Role.String(),
		Description:  p.Description,
		Brightness:   p.Brightness,
		Terrain:      p.Terrain.String(),
		SafeZone:     p.SafeZone,
		Filled:       p.Filled(),
		Exits:        exits,
		Hazards:      p.Hazards,
		Resources:    resources,
		Occupants:    p.Occupants,
		DroppedItems: p.DroppedItems,
		Flags:        p.Flags,
	}
}

// codeFor maps service errors onto wire codes. Order matters where
// wrapping nests: a blocked traversal wraps its condition text, a
// persistence failure wraps the driver error.
func codeFor(err error) string {
	var vErr *worldgen.ValidationError
	switch {
	case errors.Is(err, game.ErrUnknownPlayer):
		return protocol.ErrUnknownPlayer
	case errors.Is(err, nav.ErrUnclear):
		return protocol.ErrUnresolvedExit
	case errors.Is(err, nav.ErrBlocked):
		return protocol.ErrBlocked
	case errors.Is(err, worldgen.ErrGenerationExhausted):
		return protocol.ErrGeneration
	case errors.As(err, &vErr):
		return protocol.ErrValidation
	case errors.Is(err, oracle.ErrUnavailable):
		return protocol.ErrOracle
	case errors.Is(err, game.ErrPersistence):
		return protocol.ErrPersistence
	case errors.Is(err, world.ErrNotFound):
		return protocol.ErrNotFound
	default:
		return protocol.ErrInternal
	}
}
