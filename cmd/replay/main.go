package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"everdeep.ai/internal/config"
	"everdeep.ai/internal/oracle"
	persistlog "everdeep.ai/internal/persistence/log"
	"everdeep.ai/internal/persistence/snapshot"
	"everdeep.ai/internal/persistence/worlddb"
	"everdeep.ai/internal/world"
	"everdeep.ai/internal/worldgen"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		cfgPath   = flag.String("config", "", "server config the world ran with (generation knobs for -verify)")
		player    = flag.String("player", "", "only print events involving this player id")
		limit     = flag.Int("limit", 0, "stop the transcript after this many lines (0 = all)")
		verify    = flag.Bool("verify", false, "regenerate the world from its seed and diff the structure against the snapshot")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.Read(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	filled := 0
	pending := 0
	for _, sv := range snap.Spaces {
		if sv.Description != "" {
			filled++
		}
		for _, ev := range sv.Exits {
			if ev.Placeholder != "" {
				pending++
			}
		}
	}
	fmt.Printf("snapshot v%d world=%s seed=%q chunks=%d spaces=%d filled=%d pending_exits=%d players=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Seed.Text,
		len(snap.Chunks), len(snap.Spaces), filled, pending, len(snap.Players))

	if *verify {
		if err := verifyStructure(snap, *cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, "verify:", err)
			os.Exit(1)
		}
	}

	if *eventsDir == "" {
		return
	}

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	printed := 0
	for _, path := range files {
		if err := printFile(path, *player, *limit, &printed); err != nil {
			fmt.Fprintln(os.Stderr, "transcript:", err)
			os.Exit(1)
		}
		if *limit != 0 && printed >= *limit {
			break
		}
	}
	fmt.Printf("transcript: %d events\n", printed)
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func printFile(path, player string, limit int, printed *int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var e persistlog.EventEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if player != "" && e.Player != player {
			continue
		}
		line := fmt.Sprintf("%s %-7s %s", time.Unix(e.TimeUnix, 0).UTC().Format(time.RFC3339), e.Kind, e.Player)
		if e.SpaceID != "" {
			line += " @ " + e.SpaceID
		}
		if e.Exit != "" {
			line += " via " + e.Exit
		}
		if e.Detail != "" {
			line += " (" + e.Detail + ")"
		}
		fmt.Println(line)
		*printed++
		if limit != 0 && *printed >= limit {
			return nil
		}
	}
	return sc.Err()
}

// verifyStructure rebuilds the world from the snapshot's seed with the
// oracle disabled and checks that everything structural comes out the
// same: chunk lineage, adjacency, difficulty, and per-space roles and
// exits. Prose is excluded; oracle text is not replayable.
func verifyStructure(snap snapshot.SnapshotV1, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := worlddb.Open(":memory:")
	if err != nil {
		return err
	}
	defer repo.Close()

	seed := world.Seed{Text: snap.Seed.Text, Lore: snap.Seed.Lore}
	st := world.NewStore(seed)
	gen := worldgen.NewGenerator(cfg.GenConfig(), seed, st, repo, oracle.Disabled{}, nil, nil)

	ordered := append([]snapshot.ChunkV1(nil), snap.Chunks...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Level != ordered[j].Level {
			return ordered[i].Level < ordered[j].Level
		}
		return ordered[i].ID < ordered[j].ID
	})

	// Parents first; subzones emit their spaces as they generate, so
	// space-level entries need no explicit call.
	ctx := context.Background()
	start := time.Now()
	for _, cv := range ordered {
		if world.Level(cv.Level) >= world.LevelSpace {
			continue
		}
		if _, err := gen.EnsureChunk(ctx, world.ChunkID(cv.ID), ""); err != nil {
			return fmt.Errorf("regenerate %s: %w", cv.ID, err)
		}
	}

	var mismatches []string
	report := func(format string, args ...any) {
		if len(mismatches) < 20 {
			mismatches = append(mismatches, fmt.Sprintf(format, args...))
		}
	}

	for _, cv := range ordered {
		got, ok := st.Chunk(world.ChunkID(cv.ID))
		if !ok {
			report("chunk %s: missing after regeneration", cv.ID)
			continue
		}
		if int(got.Level) != cv.Level {
			report("chunk %s: level %d != %d", cv.ID, got.Level, cv.Level)
		}
		if string(got.Parent) != cv.Parent {
			report("chunk %s: parent %s != %s", cv.ID, got.Parent, cv.Parent)
		}
		if got.Difficulty != cv.Difficulty {
			report("chunk %s: difficulty %d != %d", cv.ID, got.Difficulty, cv.Difficulty)
		}
		if diff := diffStringSets(chunkIDStrings(got.Children), cv.Children); diff != "" {
			report("chunk %s: children %s", cv.ID, diff)
		}
		for dir, want := range cv.Adjacency {
			if string(got.Adjacency[dir]) != want {
				report("chunk %s: adjacency[%s] %s != %s", cv.ID, dir, got.Adjacency[dir], want)
			}
		}
	}

	resolvedLater := 0
	for _, sv := range snap.Spaces {
		got, ok := st.Space(world.ChunkID(sv.ChunkID))
		if !ok {
			report("space %s: missing after regeneration", sv.ChunkID)
			continue
		}
		if got.Role.String() != sv.Role {
			report("space %s: role %s != %s", sv.ChunkID, got.Role, sv.Role)
		}
		for label, want := range sv.Exits {
			exit, ok := got.Exits[label]
			if !ok {
				report("space %s: exit %q missing", sv.ChunkID, label)
				continue
			}
			if exit.Hidden != want.Hidden || exit.HiddenDC != want.HiddenDC {
				report("space %s: exit %q hidden %v/%d != %v/%d", sv.ChunkID, label, exit.Hidden, exit.HiddenDC, want.Hidden, want.HiddenDC)
			}
			if len(exit.Conditions) != len(want.Conditions) {
				report("space %s: exit %q has %d conditions, snapshot has %d", sv.ChunkID, label, len(exit.Conditions), len(want.Conditions))
			}
			switch {
			case exit.Chunk != "":
				// In-subzone edges never change after generation.
				if string(exit.Chunk) != want.Chunk {
					report("space %s: exit %q target %s != %s", sv.ChunkID, label, exit.Chunk, want.Chunk)
				}
			case exit.Placeholder != "":
				// A frontier exit regenerates pending; the snapshot may
				// have resolved it through play since.
				if want.Placeholder == "" && want.Chunk != "" {
					resolvedLater++
				} else if want.Placeholder != exit.Placeholder {
					report("space %s: exit %q pending %q != %q", sv.ChunkID, label, exit.Placeholder, want.Placeholder)
				}
			}
		}
		for label := range got.Exits {
			if _, ok := sv.Exits[label]; !ok {
				report("space %s: extra exit %q", sv.ChunkID, label)
			}
		}
	}

	if len(mismatches) > 0 {
		for _, m := range mismatches {
			fmt.Fprintln(os.Stderr, " ", m)
		}
		return fmt.Errorf("%d structural mismatches", len(mismatches))
	}
	fmt.Printf("verify ok: %d chunks, %d spaces regenerated in %s (%d exits resolved since generation)\n",
		len(snap.Chunks), len(snap.Spaces), time.Since(start).Round(time.Millisecond), resolvedLater)
	return nil
}

func chunkIDStrings(ids []world.ChunkID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func diffStringSets(got, want []string) string {
	gs := append([]string(nil), got...)
	ws := append([]string(nil), want...)
	sort.Strings(gs)
	sort.Strings(ws)
	if len(gs) != len(ws) {
		return fmt.Sprintf("count %d != %d", len(gs), len(ws))
	}
	for i := range gs {
		if gs[i] != ws[i] {
			return fmt.Sprintf("%s != %s", gs[i], ws[i])
		}
	}
	return ""
}
