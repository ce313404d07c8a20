package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (defaults to <data>/world.db)")
	parent := fs.String("parent", "", "parent chunk id filter (children)")
	id := fs.String("id", "", "chunk id (space)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "seed"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "world.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "seed":
		var r struct {
			Seed string `json:"seed"`
			Lore string `json:"lore"`
		}
		row := db.QueryRow(`SELECT seed,lore FROM world_seed WHERE id=1`)
		if err := row.Scan(&r.Seed, &r.Lore); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		printJSON(r)

	case "chunks":
		rows, err := db.Query(`SELECT level,COUNT(*) FROM world_chunks GROUP BY level ORDER BY level`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		total := 0
		for rows.Next() {
			var r struct {
				Level int `json:"level"`
				Count int `json:"count"`
			}
			if err := rows.Scan(&r.Level, &r.Count); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			total += r.Count
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "total=%d\n", total)

	case "children":
		if strings.TrimSpace(*parent) == "" {
			fmt.Fprintln(os.Stderr, "missing -parent")
			os.Exit(2)
		}
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := db.Query(`SELECT id,level,biome,difficulty,size_estimate FROM world_chunks WHERE parent_id=? ORDER BY id LIMIT ?`, strings.TrimSpace(*parent), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID           string `json:"id"`
				Level        int    `json:"level"`
				Biome        string `json:"biome"`
				Difficulty   int    `json:"difficulty"`
				SizeEstimate int    `json:"size_estimate"`
			}
			if err := rows.Scan(&r.ID, &r.Level, &r.Biome, &r.Difficulty, &r.SizeEstimate); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "spaces":
		var r struct {
			Total    int `json:"total"`
			Filled   int `json:"filled"`
			Pending  int `json:"pending_exits"`
			SafeZone int `json:"safe_zones"`
		}
		row := db.QueryRow(`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN description != '' THEN 1 ELSE 0 END),0),
			COALESCE(SUM(CASE WHEN exits LIKE '%pending:%' THEN 1 ELSE 0 END),0),
			COALESCE(SUM(safe_zone),0)
			FROM space_properties`)
		if err := row.Scan(&r.Total, &r.Filled, &r.Pending, &r.SafeZone); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		printJSON(r)

	case "space":
		if strings.TrimSpace(*id) == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		var r struct {
			ChunkID     string          `json:"chunk_id"`
			Role        string          `json:"role"`
			Description string          `json:"description"`
			Exits       json.RawMessage `json:"exits"`
			Brightness  int             `json:"brightness"`
			Terrain     int             `json:"terrain"`
			Occupants   json.RawMessage `json:"occupants"`
			Flags       json.RawMessage `json:"flags"`
			SafeZone    int             `json:"safe_zone"`
		}
		row := db.QueryRow(`SELECT chunk_id,role,description,exits,brightness,terrain,occupants,flags,safe_zone FROM space_properties WHERE chunk_id=?`, strings.TrimSpace(*id))
		var exits, occupants, flags string
		if err := row.Scan(&r.ChunkID, &r.Role, &r.Description, &exits, &r.Brightness, &r.Terrain, &occupants, &flags, &r.SafeZone); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		r.Exits = json.RawMessage(exits)
		r.Occupants = json.RawMessage(occupants)
		r.Flags = json.RawMessage(flags)
		printJSON(r)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] seed|chunks|children|spaces|space")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
