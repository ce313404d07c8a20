package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"everdeep.ai/internal/world"
)

// Version is the current snapshot format.
const Version = 1

// Snapshot DTOs are versioned and decoupled from the runtime types so
// old exports stay readable as the world structs evolve.

type Header struct {
	Version     int    `json:"version"`
	WorldID     string `json:"world_id"`
	CreatedUnix int64  `json:"created_unix"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed    SeedV1     `json:"seed"`
	Chunks  []ChunkV1  `json:"chunks"`
	Spaces  []SpaceV1  `json:"spaces"`
	Players []PlayerV1 `json:"players,omitempty"`
}

type SeedV1 struct {
	Text string `json:"text"`
	Lore string `json:"lore"`
}

type ChunkV1 struct {
	ID             string            `json:"id"`
	Level          int               `json:"level"`
	Parent         string            `json:"parent,omitempty"`
	Children       []string          `json:"children,omitempty"`
	Lore           string            `json:"lore"`
	Biome          string            `json:"biome"`
	SizeEstimate   int               `json:"size_estimate"`
	HostileDensity float64           `json:"hostile_density"`
	Difficulty     int               `json:"difficulty"`
	Adjacency      map[string]string `json:"adjacency,omitempty"`
}

type SpaceV1 struct {
	ChunkID      string            `json:"chunk_id"`
	Role         string            `json:"role"`
	Description  string            `json:"description"`
	Exits        map[string]ExitV1 `json:"exits"`
	Brightness   int               `json:"brightness"`
	Terrain      int               `json:"terrain"`
	Hazards      []string          `json:"hazards,omitempty"`
	Resources    []ResourceV1      `json:"resources,omitempty"`
	Occupants    []string          `json:"occupants,omitempty"`
	DroppedItems []string          `json:"dropped_items,omitempty"`
	Flags        map[string]bool   `json:"flags,omitempty"`
	SafeZone     bool              `json:"safe_zone,omitempty"`
}

type ExitV1 struct {
	Chunk       string        `json:"chunk,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Hidden      bool          `json:"hidden,omitempty"`
	HiddenDC    int           `json:"hidden_dc,omitempty"`
	Conditions  []ConditionV1 `json:"conditions,omitempty"`
}

type ConditionV1 struct {
	Kind      int    `json:"kind"`
	Skill     string `json:"skill,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
	Item      string `json:"item,omitempty"`
}

type ResourceV1 struct {
	Kind string `json:"kind"`
	Qty  int    `json:"qty"`
}

type PlayerV1 struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
}

// Capture copies the arena into snapshot form. Chunk and space order
// follows the store's sorted id listing, so equal worlds produce equal
// snapshots. The caller stamps Header and Players; Capture records
// only world state.
func Capture(seed world.Seed, st *world.Store) SnapshotV1 {
	snap := SnapshotV1{
		Seed: SeedV1{Text: seed.Text, Lore: seed.Lore},
	}
	for _, id := range st.ChunkIDs() {
		c, ok := st.Chunk(id)
		if !ok {
			continue
		}
		cv := ChunkV1{
			ID:             string(c.ID),
			Level:          int(c.Level),
			Parent:         string(c.Parent),
			Lore:           c.Lore,
			Biome:          c.Biome,
			SizeEstimate:   c.SizeEstimate,
			HostileDensity: c.HostileDensity,
			Difficulty:     c.Difficulty,
		}
		for _, ch := range c.Children {
			cv.Children = append(cv.Children, string(ch))
		}
		if len(c.Adjacency) > 0 {
			cv.Adjacency = make(map[string]string, len(c.Adjacency))
			for dir, n := range c.Adjacency {
				cv.Adjacency[dir] = string(n)
			}
		}
		snap.Chunks = append(snap.Chunks, cv)
	}
	for _, id := range st.SpaceIDs() {
		p, ok := st.Space(id)
		if !ok {
			continue
		}
		snap.Spaces = append(snap.Spaces, captureSpace(p))
	}
	return snap
}

// CapturePlayers renders live player positions in id order. Restore
// does not place players back; the record exists so an operator can see
// who was where when the snapshot was cut.
func CapturePlayers(positions map[string]world.ChunkID) []PlayerV1 {
	if len(positions) == 0 {
		return nil
	}
	out := make([]PlayerV1, 0, len(positions))
	for id, sid := range positions {
		out = append(out, PlayerV1{ID: id, SpaceID: string(sid)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func captureSpace(p *world.SpaceProperties) SpaceV1 {
	sv := SpaceV1{
		ChunkID:      string(p.ChunkID),
		Role:         p.Role.String(),
		Description:  p.Description,
		Brightness:   p.Brightness,
		Terrain:      int(p.Terrain),
		Hazards:      append([]string(nil), p.Hazards...),
		Occupants:    append([]string(nil), p.Occupants...),
		DroppedItems: append([]string(nil), p.DroppedItems...),
		SafeZone:     p.SafeZone,
	}
	if p.Exits != nil {
		sv.Exits = make(map[string]ExitV1, len(p.Exits))
		for label, t := range p.Exits {
			ev := ExitV1{
				Chunk:       string(t.Chunk),
				Placeholder: t.Placeholder,
				Hidden:      t.Hidden,
				HiddenDC:    t.HiddenDC,
			}
			for _, c := range t.Conditions {
				ev.Conditions = append(ev.Conditions, ConditionV1{
					Kind:      int(c.Kind),
					Skill:     c.Skill,
					Threshold: c.Threshold,
					Item:      c.Item,
				})
			}
			sv.Exits[label] = ev
		}
	}
	for _, r := range p.Resources {
		sv.Resources = append(sv.Resources, ResourceV1{Kind: r.Kind, Qty: r.Qty})
	}
	if p.Flags != nil {
		sv.Flags = make(map[string]bool, len(p.Flags))
		for k, v := range p.Flags {
			sv.Flags[k] = v
		}
	}
	return sv
}

// Restore pushes a snapshot's contents into the arena and returns the
// seed it carried plus the chunk and space counts.
func Restore(snap SnapshotV1, st *world.Store) (world.Seed, int, int) {
	for _, cv := range snap.Chunks {
		c := &world.Chunk{
			ID:             world.ChunkID(cv.ID),
			Level:          world.Level(cv.Level),
			Parent:         world.ChunkID(cv.Parent),
			Lore:           cv.Lore,
			Biome:          cv.Biome,
			SizeEstimate:   cv.SizeEstimate,
			HostileDensity: cv.HostileDensity,
			Difficulty:     cv.Difficulty,
		}
		for _, ch := range cv.Children {
			c.Children = append(c.Children, world.ChunkID(ch))
		}
		if len(cv.Adjacency) > 0 {
			c.Adjacency = make(map[string]world.ChunkID, len(cv.Adjacency))
			for dir, n := range cv.Adjacency {
				c.Adjacency[dir] = world.ChunkID(n)
			}
		}
		st.PutChunk(c)
	}
	for _, sv := range snap.Spaces {
		st.PutSpace(restoreSpace(sv))
	}
	return world.Seed{Text: snap.Seed.Text, Lore: snap.Seed.Lore}, len(snap.Chunks), len(snap.Spaces)
}

func restoreSpace(sv SpaceV1) *world.SpaceProperties {
	p := &world.SpaceProperties{
		ChunkID:      world.ChunkID(sv.ChunkID),
		Description:  sv.Description,
		Brightness:   sv.Brightness,
		Terrain:      world.Terrain(sv.Terrain),
		Hazards:      append([]string(nil), sv.Hazards...),
		Occupants:    append([]string(nil), sv.Occupants...),
		DroppedItems: append([]string(nil), sv.DroppedItems...),
		SafeZone:     sv.SafeZone,
	}
	if role, ok := world.ParseRole(sv.Role); ok {
		p.Role = role
	}
	if sv.Exits != nil {
		p.Exits = make(map[string]world.EdgeTarget, len(sv.Exits))
		for label, ev := range sv.Exits {
			t := world.EdgeTarget{
				Chunk:       world.ChunkID(ev.Chunk),
				Placeholder: ev.Placeholder,
				Hidden:      ev.Hidden,
				HiddenDC:    ev.HiddenDC,
			}
			for _, cv := range ev.Conditions {
				t.Conditions = append(t.Conditions, world.Condition{
					Kind:      world.ConditionKind(cv.Kind),
					Skill:     cv.Skill,
					Threshold: cv.Threshold,
					Item:      cv.Item,
				})
			}
			p.Exits[label] = t
		}
	}
	for _, rv := range sv.Resources {
		p.Resources = append(p.Resources, world.ResourceNode{Kind: rv.Kind, Qty: rv.Qty})
	}
	if sv.Flags != nil {
		p.Flags = make(map[string]bool, len(sv.Flags))
		for k, v := range sv.Flags {
			p.Flags[k] = v
		}
	}
	return p
}

// Write stores a snapshot as a zstd stream: one JSON header line for
// cheap inspection with standard tools, then the gob body.
func Write(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func Read(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
