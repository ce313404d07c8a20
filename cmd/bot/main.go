package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"everdeep.ai/internal/protocol"
)

// A roaming client: joins, then wanders through random exits until it
// has made -moves moves (0 keeps it walking until interrupted).
func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "wanderer", "player name")
		resume     = flag.String("resume", "", "resume token from a previous session")
		moves      = flag.Int("moves", 0, "stop after this many moves (0 = endless)")
		delay      = flag.Duration("delay", 2*time.Second, "pause between moves")
		perception = flag.Int("perception", 10, "perception score (reveals hidden exits)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		Perception:      *perception,
	}
	if *resume != "" {
		hello.Auth = &protocol.HelloAuth{ResumeToken: *resume}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var exits []string
	seq := 0
	moved := 0

	labels := func(v protocol.ViewPayload) []string {
		out := make([]string, 0, len(v.Exits))
		for _, e := range v.Exits {
			out = append(out, e.Label)
		}
		return out
	}

	sendNext := func() {
		select {
		case <-stop:
			os.Exit(0)
		default:
		}
		time.Sleep(*delay)
		seq++
		if len(exits) == 0 {
			// Dead end or stale view: ask for a fresh look.
			_ = conn.WriteJSON(protocol.LookMsg{
				Type:            protocol.TypeLook,
				ProtocolVersion: protocol.Version,
				ReqID:           fmt.Sprintf("R%d", seq),
			})
			return
		}
		intent := exits[rng.Intn(len(exits))]
		logger.Printf("-> %s", intent)
		_ = conn.WriteJSON(protocol.MoveMsg{
			Type:            protocol.TypeMove,
			ProtocolVersion: protocol.Version,
			ReqID:           fmt.Sprintf("R%d", seq),
			Intent:          intent,
		})
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME player=%s world=%s resume=%s", w.PlayerID, w.WorldID, w.ResumeToken)
			if w.Lore != "" {
				logger.Printf("lore: %s", w.Lore)
			}
			logger.Printf("at %s: %s (exits %v)", w.View.SpaceID, w.View.Description, labels(w.View))
			exits = labels(w.View)
			sendNext()

		case protocol.TypeView:
			var v protocol.ViewMsg
			if err := json.Unmarshal(msg, &v); err != nil {
				continue
			}
			exits = labels(v.View)
			sendNext()

		case protocol.TypeMoveResult:
			var res protocol.MoveResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			moved++
			logger.Printf("[%d] %s -> %s via %q: %s (exits %v)", moved, res.From, res.To, res.Exit, res.View.Description, labels(res.View))
			if len(res.View.Occupants) > 0 {
				logger.Printf("here: %v", res.View.Occupants)
			}
			if *moves > 0 && moved >= *moves {
				logger.Printf("done after %d moves", moved)
				return
			}
			exits = labels(res.View)
			sendNext()

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("rejected (%s): %s", ack.Code, ack.Message)
				sendNext()
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logger.Printf("* %s %s at %s", ev.Player, ev.Kind, ev.SpaceID)
		}
	}
}
