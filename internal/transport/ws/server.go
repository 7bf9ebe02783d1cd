package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"blockhaven/internal/protocol"
	"blockhaven/internal/sim/world"
)

const outQueueSize = 64

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
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
				case b, ok := <-out:
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

		// Reader loop. Malformed frames are dropped; the connection only
		// dies on transport errors.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, err := protocol.Decode(msg)
			if err != nil {
				continue
			}
			if env.ProtocolVersion != protocol.Version {
				continue
			}
			switch env.Type {
			case protocol.TypeJoin, protocol.TypeAction, protocol.TypeChat:
				s.world.Inbox() <- world.InboundEnvelope{SessionID: sessionID, Env: env}
			}
		}

		s.world.Leave() <- sessionID
	}
}

// handshake reads the opening AUTH frame and answers AUTH_OK or AUTH_ERROR
// before any other traffic. A non-AUTH first frame closes the connection.
func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	env, err := protocol.Decode(msg)
	if err != nil || env.Type != protocol.TypeAuth {
		closeFor(conn, "expected AUTH")
		return "", nil
	}
	if env.ProtocolVersion != protocol.Version {
		writeFrame(conn, protocol.MustEncode(protocol.TypeAuthError, env.ID, protocol.AuthErrorMsg{
			Error: protocol.ErrorBody{Code: protocol.ErrInvalidArgument, Message: "unsupported protocol_version"},
		}))
		return "", nil
	}
	var auth protocol.AuthMsg
	if err := json.Unmarshal(env.Payload, &auth); err != nil {
		closeFor(conn, "bad AUTH payload")
		return "", nil
	}

	out = make(chan []byte, outQueueSize)
	respCh := make(chan world.AuthResponse, 1)
	s.world.Auth() <- world.AuthRequest{
		Name:    auth.Name,
		IsAgent: auth.IsAgent,
		Out:     out,
		Resp:    respCh,
	}
	resp := <-respCh

	if resp.Err != nil {
		writeFrame(conn, protocol.MustEncode(protocol.TypeAuthError, env.ID, protocol.AuthErrorMsg{
			Error: *resp.Err,
		}))
		return "", nil
	}

	if err := writeFrame(conn, protocol.MustEncode(protocol.TypeAuthOK, env.ID, resp.OK)); err != nil {
		s.world.Leave() <- resp.SessionID
		return "", nil
	}
	return resp.SessionID, out
}

func closeFor(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeFrame(conn *websocket.Conn, b []byte) error {
	if b == nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
