package worlddb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"golang.org/x/sync/errgroup"

	"everdeep.ai/internal/world"
)

// SQLiteRepository is the durable tier: world seed, chunk hierarchy
// and space properties in one database. It is the sole owner of
// persisted state; the in-memory arena is an evictable accelerator in
// front of it.
type SQLiteRepository struct {
	db *sql.DB

	getSeed  *sql.Stmt
	putSeed  *sql.Stmt
	getChunk *sql.Stmt
	putChunk *sql.Stmt
	getSpace *sql.Stmt
	putSpace *sql.Stmt
}

func Open(path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &SQLiteRepository{db: db}
	if err := r.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the write pattern here: bursts of small upserts as a
	// subzone materializes, with reads in between.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS world_seed (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			seed TEXT NOT NULL,
			lore TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS world_chunks (
			id TEXT PRIMARY KEY,
			level INTEGER NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			children TEXT NOT NULL,
			lore TEXT NOT NULL,
			biome TEXT NOT NULL,
			size_estimate INTEGER NOT NULL,
			hostile_density REAL NOT NULL,
			difficulty INTEGER NOT NULL,
			adjacency TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_parent ON world_chunks(parent_id);`,
		`CREATE TABLE IF NOT EXISTS space_properties (
			chunk_id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			description TEXT NOT NULL,
			exits TEXT NOT NULL,
			brightness INTEGER NOT NULL,
			terrain INTEGER NOT NULL,
			hazards TEXT NOT NULL,
			resources TEXT NOT NULL,
			occupants TEXT NOT NULL,
			dropped_items TEXT NOT NULL,
			flags TEXT NOT NULL,
			safe_zone INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) prepare() error {
	var err error
	if r.getSeed, err = r.db.Prepare(`SELECT seed, lore FROM world_seed WHERE id = 1`); err != nil {
		return err
	}
	if r.putSeed, err = r.db.Prepare(`INSERT OR REPLACE INTO world_seed(id, seed, lore) VALUES(1, ?, ?)`); err != nil {
		return err
	}
	if r.getChunk, err = r.db.Prepare(`SELECT level, parent_id, children, lore, biome, size_estimate, hostile_density, difficulty, adjacency
		FROM world_chunks WHERE id = ?`); err != nil {
		return err
	}
	if r.putChunk, err = r.db.Prepare(`INSERT OR REPLACE INTO world_chunks
		(id, level, parent_id, children, lore, biome, size_estimate, hostile_density, difficulty, adjacency)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}
	if r.getSpace, err = r.db.Prepare(`SELECT role, description, exits, brightness, terrain, hazards, resources, occupants, dropped_items, flags, safe_zone
		FROM space_properties WHERE chunk_id = ?`); err != nil {
		return err
	}
	if r.putSpace, err = r.db.Prepare(`INSERT OR REPLACE INTO space_properties
		(chunk_id, role, description, exits, brightness, terrain, hazards, resources, occupants, dropped_items, flags, safe_zone)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	for _, s := range []*sql.Stmt{r.getSeed, r.putSeed, r.getChunk, r.putChunk, r.getSpace, r.putSpace} {
		if s != nil {
			_ = s.Close()
		}
	}
	return r.db.Close()
}

// SaveSeed writes the singleton seed record. Seeds never change after
// world initialization, so repeat saves must carry the same values.
func (r *SQLiteRepository) SaveSeed(ctx context.Context, seed world.Seed) error {
	if _, err := r.putSeed.ExecContext(ctx, seed.Text, seed.Lore); err != nil {
		return fmt.Errorf("persist seed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadSeed(ctx context.Context) (world.Seed, error) {
	var s world.Seed
	err := r.getSeed.QueryRowContext(ctx).Scan(&s.Text, &s.Lore)
	if errors.Is(err, sql.ErrNoRows) {
		return world.Seed{}, fmt.Errorf("seed: %w", world.ErrNotFound)
	}
	if err != nil {
		return world.Seed{}, fmt.Errorf("load seed: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) SaveChunk(ctx context.Context, c *world.Chunk) error {
	children, err := json.Marshal(c.Children)
	if err != nil {
		return fmt.Errorf("encode children of %s: %w", c.ID, err)
	}
	adjacency, err := json.Marshal(c.Adjacency)
	if err != nil {
		return fmt.Errorf("encode adjacency of %s: %w", c.ID, err)
	}
	_, err = r.putChunk.ExecContext(ctx,
		string(c.ID), int(c.Level), string(c.Parent), string(children),
		c.Lore, c.Biome, c.SizeEstimate, c.HostileDensity, c.Difficulty,
		string(adjacency),
	)
	if err != nil {
		return fmt.Errorf("persist chunk %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) LoadChunk(ctx context.Context, id world.ChunkID) (*world.Chunk, error) {
	c := &world.Chunk{ID: id}
	var level int
	var parent, children, adjacency string
	err := r.getChunk.QueryRowContext(ctx, string(id)).Scan(
		&level, &parent, &children, &c.Lore, &c.Biome,
		&c.SizeEstimate, &c.HostileDensity, &c.Difficulty, &adjacency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, world.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load chunk %s: %w", id, err)
	}
	c.Level = world.Level(level)
	c.Parent = world.ChunkID(parent)
	if err := json.Unmarshal([]byte(children), &c.Children); err != nil {
		return nil, fmt.Errorf("decode children of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(adjacency), &c.Adjacency); err != nil {
		return nil, fmt.Errorf("decode adjacency of %s: %w", id, err)
	}
	return c, nil
}

// SaveSpaces writes a batch of space records in one transaction, the
// unit a subzone generation or a frontier link produces.
func (r *SQLiteRepository) SaveSpaces(ctx context.Context, ps []*world.SpaceProperties) error {
	if len(ps) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := tx.StmtContext(ctx, r.putSpace)
	for _, p := range ps {
		args, err := spaceArgs(p)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("persist space %s: %w", p.ChunkID, err)
		}
	}
	return tx.Commit()
}

// SaveSpace is the incremental single-space write used after content
// fill and per-space state mutations.
func (r *SQLiteRepository) SaveSpace(ctx context.Context, p *world.SpaceProperties) error {
	args, err := spaceArgs(p)
	if err != nil {
		return err
	}
	if _, err := r.putSpace.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("persist space %s: %w", p.ChunkID, err)
	}
	return nil
}

func spaceArgs(p *world.SpaceProperties) ([]any, error) {
	exits, err := json.Marshal(p.Exits)
	if err != nil {
		return nil, fmt.Errorf("encode exits of %s: %w", p.ChunkID, err)
	}
	hazards, err := json.Marshal(p.Hazards)
	if err != nil {
		return nil, fmt.Errorf("encode hazards of %s: %w", p.ChunkID, err)
	}
	resources, err := json.Marshal(p.Resources)
	if err != nil {
		return nil, fmt.Errorf("encode resources of %s: %w", p.ChunkID, err)
	}
	occupants, err := json.Marshal(p.Occupants)
	if err != nil {
		return nil, fmt.Errorf("encode occupants of %s: %w", p.ChunkID, err)
	}
	dropped, err := json.Marshal(p.DroppedItems)
	if err != nil {
		return nil, fmt.Errorf("encode items of %s: %w", p.ChunkID, err)
	}
	flags, err := json.Marshal(p.Flags)
	if err != nil {
		return nil, fmt.Errorf("encode flags of %s: %w", p.ChunkID, err)
	}
	safe := 0
	if p.SafeZone {
		safe = 1
	}
	return []any{
		string(p.ChunkID), p.Role.String(), p.Description, string(exits),
		p.Brightness, int(p.Terrain), string(hazards), string(resources),
		string(occupants), string(dropped), string(flags), safe,
	}, nil
}

func (r *SQLiteRepository) LoadSpace(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, error) {
	p := &world.SpaceProperties{ChunkID: id}
	var role, exits, hazards, resources, occupants, dropped, flags string
	var terrain, safe int
	err := r.getSpace.QueryRowContext(ctx, string(id)).Scan(
		&role, &p.Description, &exits, &p.Brightness, &terrain,
		&hazards, &resources, &occupants, &dropped, &flags, &safe,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("space %s: %w", id, world.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load space %s: %w", id, err)
	}
	if parsed, ok := world.ParseRole(role); ok {
		p.Role = parsed
	}
	p.Terrain = world.Terrain(terrain)
	p.SafeZone = safe != 0
	if err := json.Unmarshal([]byte(exits), &p.Exits); err != nil {
		return nil, fmt.Errorf("decode exits of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(hazards), &p.Hazards); err != nil {
		return nil, fmt.Errorf("decode hazards of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(resources), &p.Resources); err != nil {
		return nil, fmt.Errorf("decode resources of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(occupants), &p.Occupants); err != nil {
		return nil, fmt.Errorf("decode occupants of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(dropped), &p.DroppedItems); err != nil {
		return nil, fmt.Errorf("decode items of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(flags), &p.Flags); err != nil {
		return nil, fmt.Errorf("decode flags of %s: %w", id, err)
	}
	return p, nil
}

// LoadSpaceWithPrefetch loads the requested space plus every space
// its resolved exits lead to, fetched concurrently to mask first-move
// latency. Neighbors that do not exist yet are simply absent from the
// result, never an error.
func (r *SQLiteRepository) LoadSpaceWithPrefetch(ctx context.Context, id world.ChunkID) (*world.SpaceProperties, map[world.ChunkID]*world.SpaceProperties, error) {
	p, err := r.LoadSpace(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var targets []world.ChunkID
	seen := map[world.ChunkID]bool{id: true}
	for _, t := range p.Exits {
		if !t.Resolved() || seen[t.Chunk] {
			continue
		}
		seen[t.Chunk] = true
		targets = append(targets, t.Chunk)
	}
	if len(targets) == 0 {
		return p, nil, nil
	}

	neighbors := make([]*world.SpaceProperties, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, tid := range targets {
		i, tid := i, tid
		g.Go(func() error {
			np, err := r.LoadSpace(gctx, tid)
			if errors.Is(err, world.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			neighbors[i] = np
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make(map[world.ChunkID]*world.SpaceProperties)
	for _, np := range neighbors {
		if np != nil {
			out[np.ChunkID] = np
		}
	}
	return p, out, nil
}

// SaveAll writes the seed and the arena's entire contents in one
// transaction, the full-world save.
func (r *SQLiteRepository) SaveAll(ctx context.Context, seed world.Seed, st *world.Store) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.StmtContext(ctx, r.putSeed).ExecContext(ctx, seed.Text, seed.Lore); err != nil {
		return fmt.Errorf("persist seed: %w", err)
	}

	putChunk := tx.StmtContext(ctx, r.putChunk)
	for _, id := range st.ChunkIDs() {
		c, ok := st.Chunk(id)
		if !ok {
			continue
		}
		children, err := json.Marshal(c.Children)
		if err != nil {
			return fmt.Errorf("encode children of %s: %w", c.ID, err)
		}
		adjacency, err := json.Marshal(c.Adjacency)
		if err != nil {
			return fmt.Errorf("encode adjacency of %s: %w", c.ID, err)
		}
		if _, err := putChunk.ExecContext(ctx,
			string(c.ID), int(c.Level), string(c.Parent), string(children),
			c.Lore, c.Biome, c.SizeEstimate, c.HostileDensity, c.Difficulty,
			string(adjacency),
		); err != nil {
			return fmt.Errorf("persist chunk %s: %w", c.ID, err)
		}
	}

	putSpace := tx.StmtContext(ctx, r.putSpace)
	for _, id := range st.SpaceIDs() {
		p, ok := st.Space(id)
		if !ok {
			continue
		}
		args, err := spaceArgs(p)
		if err != nil {
			return err
		}
		if _, err := putSpace.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("persist space %s: %w", p.ChunkID, err)
		}
	}
	return tx.Commit()
}

// LoadAll reads every persisted chunk and space into the arena,
// returning the counts. The full-world load for session start.
func (r *SQLiteRepository) LoadAll(ctx context.Context, st *world.Store) (chunks, spaces int, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM world_chunks ORDER BY id`)
	if err != nil {
		return 0, 0, fmt.Errorf("list chunks: %w", err)
	}
	var chunkIDs []world.ChunkID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, 0, fmt.Errorf("scan chunk id: %w", err)
		}
		chunkIDs = append(chunkIDs, world.ChunkID(id))
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, 0, err
	}
	_ = rows.Close()

	for _, id := range chunkIDs {
		c, err := r.LoadChunk(ctx, id)
		if err != nil {
			return chunks, spaces, err
		}
		st.PutChunk(c)
		chunks++
	}

	rows, err = r.db.QueryContext(ctx, `SELECT chunk_id FROM space_properties ORDER BY chunk_id`)
	if err != nil {
		return chunks, 0, fmt.Errorf("list spaces: %w", err)
	}
	var spaceIDs []world.ChunkID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return chunks, spaces, fmt.Errorf("scan space id: %w", err)
		}
		spaceIDs = append(spaceIDs, world.ChunkID(id))
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return chunks, spaces, err
	}
	_ = rows.Close()

	for _, id := range spaceIDs {
		p, err := r.LoadSpace(ctx, id)
		if err != nil {
			return chunks, spaces, err
		}
		st.PutSpace(p)
		spaces++
	}
	return chunks, spaces, nil
}
