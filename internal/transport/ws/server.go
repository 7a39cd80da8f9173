package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voxelcraft.ai/signlink/internal/metrics"
	"voxelcraft.ai/signlink/internal/protocol"
	"voxelcraft.ai/signlink/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second

	defaultQueue = 8
	maxQueue     = 64
)

// World is the part of *world.World a session needs.
type World interface {
	Inbox() chan<- world.ActionEnvelope
	Join() chan<- world.JoinRequest
	Leave() chan<- world.LeaveRequest
	Done() <-chan struct{}
}

type Server struct {
	world World
	log   zerolog.Logger

	upgrader websocket.Upgrader
}

func NewServer(w World, logger zerolog.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID := uuid.NewString()
		log := s.log.With().Str("session", sessionID).Str("remote", r.RemoteAddr).Logger()

		playerID, out := s.handshake(r.Context(), conn, sessionID, log)
		if playerID == "" {
			return
		}
		metrics.SessionOpened()
		defer metrics.SessionClosed()
		log = log.With().Str("player", playerID).Logger()
		log.Info().Str("event", "ws.session_open").Msg("session open")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-s.world.Done():
					// Unblocks the reader below.
					closeGoingAway(conn, "world stopped")
					_ = conn.Close()
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
	read:
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			if err := protocol.ValidateAct(msg); err != nil {
				log.Debug().Err(err).Str("event", "ws.bad_act").Msg("dropping invalid ACT")
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				continue
			}
			select {
			case s.world.Inbox() <- world.ActionEnvelope{PlayerID: playerID, Act: act}:
			case <-ctx.Done():
			case <-s.world.Done():
				break read
			}
		}

		// Cleanup.
		select {
		case s.world.Leave() <- world.LeaveRequest{PlayerID: playerID, SessionID: sessionID}:
		case <-s.world.Done():
		}
		log.Info().Str("event", "ws.session_closed").Msg("session closed")
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, sessionID string, log zerolog.Logger) (playerID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	if err := protocol.ValidateHello(msg); err != nil {
		log.Debug().Err(err).Str("event", "ws.bad_hello").Msg("rejecting HELLO")
		closeWith(conn, "invalid HELLO")
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = defaultQueue
	}
	if maxQ > maxQueue {
		maxQ = maxQueue
	}
	out = make(chan []byte, maxQ)

	req := world.JoinRequest{
		Name:      strings.TrimSpace(hello.PlayerName),
		SessionID: sessionID,
		Out:       out,
		Resp:      make(chan world.JoinResponse, 1),
	}
	if hello.Auth != nil {
		req.ResumeToken = strings.TrimSpace(hello.Auth.Token)
		req.OperatorToken = hello.Auth.OperatorToken
	}
	var resp world.JoinResponse
	select {
	case s.world.Join() <- req:
	case <-s.world.Done():
		closeGoingAway(conn, "world stopped")
		return "", nil
	case <-ctx.Done():
		return "", nil
	}
	select {
	case resp = <-req.Resp:
	case <-s.world.Done():
		closeGoingAway(conn, "world stopped")
		return "", nil
	case <-ctx.Done():
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.PlayerID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func closeGoingAway(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
