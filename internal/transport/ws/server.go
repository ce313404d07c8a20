package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"everdeep.ai/internal/game"
	persistlog "everdeep.ai/internal/persistence/log"
	"everdeep.ai/internal/protocol"
	"everdeep.ai/internal/world"
)

// Server speaks the JSON message protocol over one websocket per
// player. Request failures come back as ACK rejections with a known
// error code; the connection itself only drops on transport faults.
type Server struct {
	svc *game.Service
	log *log.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	playerID string
	out      chan []byte

	mu    sync.Mutex
	space string
}

func (s *session) setSpace(id string) {
	s.mu.Lock()
	s.space = id
	s.mu.Unlock()
}

func (s *session) currentSpace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space
}

func NewServer(svc *game.Service, logger *log.Logger) *Server {
	return &Server{
		svc: svc,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]*session{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sess.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.route(ctx, sess, msg)
		}

		// Cleanup.
		s.unregister(sess)
		s.svc.Leave(sess.playerID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	playerID := ""
	if hello.Auth != nil {
		playerID = strings.TrimSpace(hello.Auth.ResumeToken)
	}
	if playerID == "" {
		playerID = uuid.NewString()
	}

	items := make(map[string]bool, len(hello.Items))
	for _, it := range hello.Items {
		items[it] = true
	}
	view, err := s.svc.Join(context.Background(), playerID, game.JoinOptions{
		Perception: hello.Perception,
		Skills:     hello.Skills,
		Items:      items,
	})
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, codeFor(err)), time.Now().Add(time.Second))
		return nil
	}

	worldID, lore := s.svc.WorldInfo()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        playerID,
		ResumeToken:     playerID,
		WorldID:         string(worldID),
		Lore:            lore,
		View:            viewPayload(view),
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.svc.Leave(playerID)
		return nil
	}

	sess := &session{
		playerID: playerID,
		out:      make(chan []byte, 16),
		space:    string(view.SpaceID),
	}
	s.register(sess)
	return sess
}

// route dispatches one inbound frame. Anything that goes wrong turns
// into an ACK rejection on the session's out channel.
func (s *Server) route(ctx context.Context, sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.nack(sess, "", protocol.ErrProtoBadRequest, "undecodable message")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.nack(sess, base.ReqID, protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}

	switch base.Type {
	case protocol.TypeLook:
		view, err := s.svc.Look(ctx, sess.playerID)
		if err != nil {
			s.nack(sess, base.ReqID, codeFor(err), err.Error())
			return
		}
		s.send(sess, protocol.ViewMsg{
			Type:            protocol.TypeView,
			ProtocolVersion: protocol.Version,
			ReqID:           base.ReqID,
			View:            viewPayload(view),
		})

	case protocol.TypeMove:
		var m protocol.MoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.nack(sess, base.ReqID, protocol.ErrProtoBadRequest, "bad MOVE")
			return
		}
		res, err := s.svc.Move(ctx, sess.playerID, m.Intent)
		if err != nil {
			s.nack(sess, base.ReqID, codeFor(err), err.Error())
			return
		}
		sess.setSpace(string(res.To))
		s.send(sess, protocol.MoveResultMsg{
			Type:            protocol.TypeMoveResult,
			ProtocolVersion: protocol.Version,
			ReqID:           base.ReqID,
			From:            string(res.From),
			To:              string(res.To),
			Exit:            res.Exit,
			View:            viewPayload(res.View),
		})

	case protocol.TypeResolve:
		var m protocol.ResolveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.nack(sess, base.ReqID, protocol.ErrProtoBadRequest, "bad RESOLVE")
			return
		}
		label, err := s.svc.Resolve(ctx, sess.playerID, m.Intent)
		if err != nil {
			s.nack(sess, base.ReqID, codeFor(err), err.Error())
			return
		}
		s.send(sess, protocol.ResolveResultMsg{
			Type:            protocol.TypeResolveExit,
			ProtocolVersion: protocol.Version,
			ReqID:           base.ReqID,
			Exit:            label,
		})

	case protocol.TypeSpaceGet:
		var m protocol.SpaceGetMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.nack(sess, base.ReqID, protocol.ErrProtoBadRequest, "bad SPACE_GET")
			return
		}
		id := world.ChunkID(m.SpaceID)
		if !id.Valid() {
			s.nack(sess, base.ReqID, protocol.ErrBadRequest, "malformed space_id")
			return
		}
		p, err := s.svc.GetSpace(ctx, id)
		if err != nil {
			s.nack(sess, base.ReqID, codeFor(err), err.Error())
			return
		}
		s.send(sess, protocol.SpaceMsg{
			Type:            protocol.TypeSpace,
			ProtocolVersion: protocol.Version,
			ReqID:           base.ReqID,
			Space:           spacePayload(p),
		})

	case protocol.TypeSpaceFlag:
		var m protocol.SpaceFlagMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.nack(sess, base.ReqID, protocol.ErrProtoBadRequest, "bad SPACE_FLAG")
			return
		}
		id := world.ChunkID(m.SpaceID)
		if !id.Valid() || m.Flag == "" {
			s.nack(sess, base.ReqID, protocol.ErrBadRequest, "malformed SPACE_FLAG")
			return
		}
		if err := s.svc.SetFlag(ctx, id, m.Flag, m.Value); err != nil {
			s.nack(sess, base.ReqID, codeFor(err), err.Error())
			return
		}
		s.send(sess, protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          base.ReqID,
			Accepted:        true,
		})

	default:
		s.nack(sess, base.ReqID, protocol.ErrBadRequest, "unknown type "+base.Type)
	}
}

// WriteEvent fans a presence event out to every session currently in
// the event's space, except the actor. Implements game.EventSink.
func (s *Server) WriteEvent(e persistlog.EventEntry) error {
	switch e.Kind {
	case "join", "leave", "move":
	default:
		return nil
	}
	b, err := json.Marshal(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
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
	for id, sess := range s.sessions {
		if id == e.Player || sess.currentSpace() != e.SpaceID {
			continue
		}
		select {
		case sess.out <- b:
		default:
		}
	}
	return nil
}

func (s *Server) register(sess *session) {
	s.mu.Lock()
	s.sessions[sess.playerID] = sess
	s.mu.Unlock()
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	if cur, ok := s.sessions[sess.playerID]; ok && cur == sess {
		delete(s.sessions, sess.playerID)
	}
	s.mu.Unlock()
}

func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		if s.log != nil {
			s.log.Printf("ws marshal: %v", err)
		}
		return
	}
	select {
	case sess.out <- b:
	default:
		if s.log != nil {
			s.log.Printf("ws drop for %s: writer stalled", sess.playerID)
		}
	}
}

func (s *Server) nack(sess *session, reqID, code, message string) {
	s.send(sess, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Accepted:        false,
		Code:            code,
		Message:         message,
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
