package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"everdeep.ai/internal/game"
	"everdeep.ai/internal/observerproto"
	persistlog "everdeep.ai/internal/persistence/log"
	"everdeep.ai/internal/world"
)

// Server streams the live event feed to read-only loopback clients: an
// operator tails what every player does without joining the world.
// Implements game.EventSink so it can sit on the same tee as the
// durable event log.
type Server struct {
	svc   *game.Service
	store *world.Store
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

type subscriber struct {
	out chan []byte

	mu     sync.Mutex
	player string
	kinds  map[string]bool
	prefix string
}

func (sub *subscriber) update(m observerproto.SubscribeMsg) {
	sub.mu.Lock()
	sub.player = strings.TrimSpace(m.Player)
	sub.prefix = strings.TrimSpace(m.SpacePrefix)
	sub.kinds = nil
	if len(m.Kinds) > 0 {
		sub.kinds = make(map[string]bool, len(m.Kinds))
		for _, k := range m.Kinds {
			sub.kinds[k] = true
		}
	}
	sub.mu.Unlock()
}

func (sub *subscriber) wants(e persistlog.EventEntry) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.player != "" && e.Player != sub.player {
		return false
	}
	if sub.kinds != nil && !sub.kinds[e.Kind] {
		return false
	}
	if sub.prefix != "" && !strings.HasPrefix(e.SpaceID, sub.prefix) {
		return false
	}
	return true
}

func NewServer(svc *game.Service, store *world.Store, logger *log.Logger) *Server {
	return &Server{
		svc:   svc,
		store: store,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]*subscriber{},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		worldID, _ := s.svc.WorldInfo()
		chunks, spaces := s.store.Counts()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         string(worldID),
			Seed:            s.store.Seed().Tag(),
			Players:         s.svc.PlayerCount(),
			Chunks:          chunks,
			Spaces:          spaces,
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sb := &subscriber{out: make(chan []byte, 256)}
		sb.update(sub)

		s.mu.Lock()
		s.subs[sid] = sb
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-sb.out:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var upd observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &upd); err != nil {
				continue
			}
			if upd.Type != "SUBSCRIBE" || upd.ProtocolVersion != observerproto.Version {
				continue
			}
			sb.update(upd)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// WriteEvent fans one event out to every subscriber whose filter wants
// it. Sends never block; a stalled observer loses frames rather than
// stalling the game.
func (s *Server) WriteEvent(e persistlog.EventEntry) error {
	b, err := json.Marshal(observerproto.EventMsg{
		Type:            "EVENT",
		ProtocolVersion: observerproto.Version,
		TimeUnix:        e.TimeUnix,
		Kind:            e.Kind,
		SpaceID:         e.SpaceID,
		Player:          e.Player,
		Exit:            e.Exit,
		Detail:          e.Detail,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sb := range s.subs {
		if !sb.wants(e) {
			continue
		}
		select {
		case sb.out <- b:
		default:
		}
	}
	return nil
}

var _ game.EventSink = (*Server)(nil)

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
