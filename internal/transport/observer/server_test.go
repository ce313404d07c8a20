package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"everdeep.ai/internal/game"
	"everdeep.ai/internal/nav"
	"everdeep.ai/internal/observerproto"
	"everdeep.ai/internal/oracle"
	persistlog "everdeep.ai/internal/persistence/log"
	"everdeep.ai/internal/world"
	"everdeep.ai/internal/worldgen"
)

type memRepo struct {
	mu     sync.Mutex
	chunks map[world.ChunkID]*world.Chunk
	spaces map[world.ChunkID]*world.SpaceProperties
}

func newMemRepo() *memRepo {
	return &memRepo{
		chunks: map[world.ChunkID]*world.Chunk{},
		spaces: map[world.ChunkID]*world.SpaceProperties{},
	}
}

func (r *memRepo) LoadChunk(_ context.Context, id world.ChunkID) (*world.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, world.ErrNotFound)
	}
	return c.Clone(), nil
}

func (r *memRepo) LoadSpace(_ context.Context, id world.ChunkID) (*world.SpaceProperties, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.spaces[id]
	if !ok {
		return nil, fmt.Errorf("space %s: %w", id, world.ErrNotFound)
	}
	return p.Clone(), nil
}

func (r *memRepo) SaveChunk(_ context.Context, c *world.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[c.ID] = c.Clone()
	return nil
}

func (r *memRepo) SaveSpaces(_ context.Context, ps []*world.SpaceProperties) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range ps {
		r.spaces[p.ChunkID] = p.Clone()
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	seed := world.Seed{Text: "observer test", Lore: "Quiet halls listen back."}
	store := world.NewStore(seed)
	repo := newMemRepo()
	gen := worldgen.NewGenerator(worldgen.Config{MinSpaces: 9, MaxSpaces: 12}, seed, store, repo, oracle.Disabled{}, nil, nil)
	resolver := nav.NewResolver(oracle.Disabled{}, nil)
	svc := game.NewService(game.Config{}, store, gen, repo, resolver, nil, nil)

	srv := NewServer(svc, store, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", srv.WSHandler())

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialObserver(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(ts.URL, "http://", "ws://", 1) + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, msg observerproto.SubscribeMsg) {
	t.Helper()
	msg.Type = "SUBSCRIBE"
	msg.ProtocolVersion = observerproto.Version
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitSub polls until the server has n subscribers and cond holds on
// each (registration runs in the handler goroutine).
func waitSub(t *testing.T, srv *Server, n int, cond func(*subscriber) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv.mu.Lock()
		ok := len(srv.subs) == n
		if ok && cond != nil {
			for _, sb := range srv.subs {
				if !cond(sb) {
					ok = false
					break
				}
			}
		}
		srv.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber state never settled")
}

func readEvent(t *testing.T, conn *websocket.Conn) observerproto.EventMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev observerproto.EventMsg
	if err := json.Unmarshal(b, &ev); err != nil {
		t.Fatalf("event %q: %v", b, err)
	}
	return ev
}

func TestBootstrapReportsWorld(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/admin/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.ProtocolVersion != observerproto.Version || boot.WorldID == "" || boot.Seed == "" {
		t.Fatalf("bootstrap incomplete: %+v", boot)
	}
	if boot.Players != 0 {
		t.Fatalf("fresh world has %d players", boot.Players)
	}
}

func TestBootstrapRejectsNonLoopback(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "203.0.113.9:4444"
	srv.BootstrapHandler()(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rr.Code)
	}
}

func TestSubscribeFiltersKinds(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dialObserver(t, ts)

	subscribe(t, conn, observerproto.SubscribeMsg{Kinds: []string{"move"}})
	waitSub(t, srv, 1, nil)

	if err := srv.WriteEvent(persistlog.EventEntry{Kind: "join", Player: "p-a", SpaceID: "w1.r0_0.z0_0.s0_0.p0"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	if err := srv.WriteEvent(persistlog.EventEntry{Kind: "move", Player: "p-a", SpaceID: "w1.r0_0.z0_0.s0_0.p1", Exit: "east"}); err != nil {
		t.Fatalf("write move: %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Kind != "move" || ev.Player != "p-a" || ev.Exit != "east" {
		t.Fatalf("join leaked past the filter: %+v", ev)
	}
}

func TestResubscribeUpdatesFilter(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dialObserver(t, ts)

	subscribe(t, conn, observerproto.SubscribeMsg{Player: "p-a"})
	waitSub(t, srv, 1, func(sb *subscriber) bool {
		sb.mu.Lock()
		defer sb.mu.Unlock()
		return sb.player == "p-a"
	})

	subscribe(t, conn, observerproto.SubscribeMsg{Player: "p-b"})
	waitSub(t, srv, 1, func(sb *subscriber) bool {
		sb.mu.Lock()
		defer sb.mu.Unlock()
		return sb.player == "p-b"
	})

	_ = srv.WriteEvent(persistlog.EventEntry{Kind: "move", Player: "p-a", SpaceID: "w1.r0_0.z0_0.s0_0.p0"})
	_ = srv.WriteEvent(persistlog.EventEntry{Kind: "move", Player: "p-b", SpaceID: "w1.r0_0.z0_0.s0_0.p1"})

	ev := readEvent(t, conn)
	if ev.Player != "p-b" {
		t.Fatalf("old filter still active: %+v", ev)
	}
}

func TestRejectsNonSubscribe(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialObserver(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO","protocol_version":"0.1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after non-SUBSCRIBE first message")
	}
}
