package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"everdeep.ai/internal/config"
	"everdeep.ai/internal/game"
	"everdeep.ai/internal/nav"
	"everdeep.ai/internal/oracle"
	persistlog "everdeep.ai/internal/persistence/log"
	"everdeep.ai/internal/persistence/snapshot"
	"everdeep.ai/internal/persistence/worlddb"
	"everdeep.ai/internal/transport/observer"
	"everdeep.ai/internal/transport/ws"
	"everdeep.ai/internal/world"
	"everdeep.ai/internal/worldgen"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "server config path (yaml; empty runs on defaults)")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		dbPath     = flag.String("db", "", "world database path (overrides config)")
		seedText   = flag.String("seed", "", "seed text for a fresh world (overrides config)")
		snapPath   = flag.String("snapshot", "", "snapshot file to import before serving (optional)")
		warm       = flag.Bool("warm", true, "load the persisted world into memory at boot")
		saveEvery  = flag.Duration("save_interval", 2*time.Minute, "periodic full-save interval (0 disables)")
		snapOnExit = flag.Bool("snapshot_on_exit", false, "write a snapshot to <data>/snapshots on shutdown")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Server.Addr = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.Server.DataDir = *dataDir
		cfg.Server.DBPath = ""
	}
	if strings.TrimSpace(*dbPath) != "" {
		cfg.Server.DBPath = *dbPath
	}
	if strings.TrimSpace(*seedText) != "" {
		cfg.World.SeedText = *seedText
	}
	cfg.Normalize()

	_ = os.MkdirAll(cfg.Server.DataDir, 0o755)

	repo, err := worlddb.Open(cfg.Server.DBPath)
	if err != nil {
		logger.Fatalf("open world db: %v", err)
	}
	defer repo.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// The stored seed wins over config so a restart never forks the
	// world. A snapshot import must agree with it.
	seed := world.Seed{Text: cfg.World.SeedText, Lore: cfg.World.Lore}
	stored, err := repo.LoadSeed(ctx)
	haveStored := false
	switch {
	case err == nil:
		if stored.Text != seed.Text {
			logger.Printf("using stored seed %q (config wanted %q)", stored.Text, seed.Text)
		}
		seed = stored
		haveStored = true
	case errors.Is(err, world.ErrNotFound):
	default:
		logger.Fatalf("load seed: %v", err)
	}

	var snap snapshot.SnapshotV1
	importing := strings.TrimSpace(*snapPath) != ""
	if importing {
		snap, err = snapshot.Read(*snapPath)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if haveStored && snap.Seed.Text != seed.Text {
			logger.Fatalf("snapshot seed mismatch: db=%q snap=%q", seed.Text, snap.Seed.Text)
		}
		seed = world.Seed{Text: snap.Seed.Text, Lore: snap.Seed.Lore}
	}
	if !haveStored {
		if err := repo.SaveSeed(ctx, seed); err != nil {
			logger.Fatalf("save seed: %v", err)
		}
	}

	store := world.NewStore(seed)
	switch {
	case importing:
		_, chunks, spaces := snapshot.Restore(snap, store)
		clearPlayerPresence(store)
		if err := repo.SaveAll(ctx, seed, store); err != nil {
			logger.Fatalf("persist imported snapshot: %v", err)
		}
		logger.Printf("imported snapshot=%s chunks=%d spaces=%d", filepath.Base(*snapPath), chunks, spaces)
	case *warm && haveStored:
		chunks, spaces, err := repo.LoadAll(ctx, store)
		if err != nil {
			logger.Fatalf("load world: %v", err)
		}
		clearPlayerPresence(store)
		logger.Printf("resumed world chunks=%d spaces=%d", chunks, spaces)
	}

	var orc oracle.Oracle
	switch cfg.Oracle.Backend {
	case "http":
		orc = oracle.NewHTTPClient(cfg.HTTPOracleConfig(), logger)
	default:
		orc = oracle.Disabled{}
	}

	genLog := persistlog.NewGenerationLogger(cfg.Server.DataDir)
	eventLog := persistlog.NewEventLogger(cfg.Server.DataDir)
	defer genLog.Close()
	defer eventLog.Close()

	gen := worldgen.NewGenerator(cfg.GenConfig(), seed, store, repo, orc, genLog, logger)
	if _, err := gen.Bootstrap(ctx); err != nil {
		logger.Fatalf("bootstrap world: %v", err)
	}
	resolver := nav.NewResolver(orc, logger)

	// Events go to the durable log and, once the transports exist, to
	// co-located players and any attached observers.
	var (
		wsSrv *ws.Server
		obSrv *observer.Server
	)
	sink := game.SinkFunc(func(e persistlog.EventEntry) error {
		_ = eventLog.WriteEvent(e)
		if obSrv != nil {
			_ = obSrv.WriteEvent(e)
		}
		if wsSrv != nil {
			return wsSrv.WriteEvent(e)
		}
		return nil
	})
	svc := game.NewService(cfg.GameConfig(), store, gen, repo, resolver, sink, logger)
	wsSrv = ws.NewServer(svc, logger)

	worldID, _ := svc.WorldInfo()

	if *saveEvery > 0 {
		go func() {
			t := time.NewTicker(*saveEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					cctx, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
					if err := repo.SaveAll(cctx, seed, store); err != nil {
						logger.Printf("periodic save: %v", err)
					}
					cancel2()
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		chunks, spaces := store.Counts()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP everdeep_players Currently tracked players.\n")
		fmt.Fprintf(rw, "# TYPE everdeep_players gauge\n")
		fmt.Fprintf(rw, "everdeep_players{world=%q} %d\n", worldID, svc.PlayerCount())

		fmt.Fprintf(rw, "# HELP everdeep_resident_chunks Chunks resident in memory.\n")
		fmt.Fprintf(rw, "# TYPE everdeep_resident_chunks gauge\n")
		fmt.Fprintf(rw, "everdeep_resident_chunks{world=%q} %d\n", worldID, chunks)

		fmt.Fprintf(rw, "# HELP everdeep_resident_spaces Space records resident in memory.\n")
		fmt.Fprintf(rw, "# TYPE everdeep_resident_spaces gauge\n")
		fmt.Fprintf(rw, "everdeep_resident_spaces{world=%q} %d\n", worldID, spaces)

		fmt.Fprintf(rw, "# HELP everdeep_gen_cache_entries Generation cache residency.\n")
		fmt.Fprintf(rw, "# TYPE everdeep_gen_cache_entries gauge\n")
		fmt.Fprintf(rw, "everdeep_gen_cache_entries{world=%q} %d\n", worldID, gen.Cache().Len())
	})

	enableAdminHTTP := envBool("EVERDEEP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("EVERDEEP_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			chunks, spaces := store.Counts()
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string `json:"world_id"`
				Seed    string `json:"seed"`
				Players int    `json:"players"`
				Chunks  int    `json:"chunks"`
				Spaces  int    `json:"spaces"`
			}{
				WorldID: string(worldID),
				Seed:    seed.Tag(),
				Players: svc.PlayerCount(),
				Chunks:  chunks,
				Spaces:  spaces,
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 30*time.Second)
			defer cancel2()
			rw.Header().Set("Content-Type", "application/json")
			if err := repo.SaveAll(ctx2, seed, store); err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			path := snapshotPath(cfg.Server.DataDir, worldID)
			rw.Header().Set("Content-Type", "application/json")
			if err := snapshot.Write(path, captureWorld(seed, store, svc)); err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path})
		})

		obSrv = observer.NewServer(svc, store, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (EVERDEEP_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("world %s listening on %s", worldID, cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Graceful exit: one last full save, then the optional snapshot.
	final, cancel3 := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel3()
	if err := repo.SaveAll(final, seed, store); err != nil {
		logger.Printf("final save: %v", err)
	}
	if *snapOnExit {
		path := snapshotPath(cfg.Server.DataDir, worldID)
		if err := snapshot.Write(path, captureWorld(seed, store, svc)); err != nil {
			logger.Printf("exit snapshot: %v", err)
		} else {
			logger.Printf("exit snapshot written to %s", path)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func snapshotPath(dataDir string, worldID world.ChunkID) string {
	name := fmt.Sprintf("%s-%d.snap.zst", worldID, time.Now().Unix())
	return filepath.Join(dataDir, "snapshots", name)
}

func captureWorld(seed world.Seed, store *world.Store, svc *game.Service) snapshot.SnapshotV1 {
	snap := snapshot.Capture(seed, store)
	snap.Header = snapshot.Header{
		Version:     snapshot.Version,
		WorldID:     string(world.WorldID(seed)),
		CreatedUnix: time.Now().Unix(),
	}
	snap.Players = snapshot.CapturePlayers(svc.Positions())
	return snap
}

// clearPlayerPresence strips player occupant tags left over from a
// previous run. Presence is session state; restored worlds start with
// everyone logged out.
func clearPlayerPresence(store *world.Store) {
	for _, id := range store.SpaceIDs() {
		p, ok := store.Space(id)
		if !ok {
			continue
		}
		stale := false
		for _, o := range p.Occupants {
			if strings.HasPrefix(o, game.OccupantPrefix) {
				stale = true
				break
			}
		}
		if !stale {
			continue
		}
		store.UpdateSpace(id, func(sp *world.SpaceProperties) {
			kept := sp.Occupants[:0:0]
			for _, o := range sp.Occupants {
				if !strings.HasPrefix(o, game.OccupantPrefix) {
					kept = append(kept, o)
				}
			}
			sp.Occupants = kept
		})
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
