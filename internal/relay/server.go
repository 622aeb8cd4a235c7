package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/cse-psgtech/infinitum-helpdesk/internal/errors"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/service"
)

const (
	// sendBufferSize bounds the per-connection outbound queue. A full
	// buffer drops the event rather than blocking the registry.
	sendBufferSize = 32

	writeTimeout = 10 * time.Second
)

// Server is the relay's WebSocket endpoint. Each accepted connection gets
// a read loop (this handler goroutine) and a writer goroutine draining a
// buffered event channel, so no peer's slow socket can stall another.
type Server struct {
	registry       *Registry
	originPatterns []string
}

func NewServer(sessions *service.DeskSessionService, originPatterns []string) *Server {
	return &Server{
		registry:       NewRegistry(sessions),
		originPatterns: originPatterns,
	}
}

// Registry exposes the room registry for stats and tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	c := newConn(ws)

	log.Info().Str("connId", c.id).Msg("relay connection established")

	go c.writeLoop()

	defer func() {
		s.registry.Disconnect(c)
		c.shutdown(websocket.StatusNormalClosure, "")
		log.Info().Str("connId", c.id).Msg("relay connection closed")
	}()

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		s.dispatch(c, data)
	}
}

func (s *Server) dispatch(c *conn, data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connId", c.id).
			Msg("malformed relay message")
		c.Send(NewError("Malformed message"))
		return
	}

	var opErr error
	switch m := msg.(type) {
	case JoinDesk:
		opErr = s.registry.JoinDesk(c, m.DeskID, m.Signature)
	case JoinScanner:
		opErr = s.registry.JoinScanner(c, m.DeskID, m.Signature)
	case ScanParticipant:
		opErr = s.registry.ScanParticipant(c, m.UniqueID)
	case ResumeScanning:
		opErr = s.registry.ResumeScanning(c)
	case ClearScan:
		opErr = s.registry.ClearScan(c)
	}

	if opErr != nil {
		message := "Internal error"
		if appErr, ok := apperrors.AsAppError(opErr); ok {
			message = appErr.Message
		}
		log.Warn().
			Err(opErr).
			Str("connId", c.id).
			Msg("relay operation rejected")
		c.Send(NewError(message))
	}
}

// conn wraps one WebSocket connection with a buffered outbound queue.
// It satisfies the registry's Peer interface.
type conn struct {
	id     string
	ws     *websocket.Conn
	events chan Envelope

	once       sync.Once
	done       chan struct{}
	closeCode  websocket.StatusCode
	closeText  string
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		id:     uuid.NewString(),
		ws:     ws,
		events: make(chan Envelope, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *conn) ID() string {
	return c.id
}

// Send queues an event without blocking. Drops with a warning when the
// buffer is full, mirroring the delivery policy of the rest of the app's
// event fan-out.
func (c *conn) Send(env Envelope) {
	select {
	case c.events <- env:
	default:
		log.Warn().
			Str("connId", c.id).
			Str("event", string(env.Event)).
			Msg("connection event buffer full, dropping event")
	}
}

// Kick closes the connection after pending events (e.g. the replaced
// notice) have been written.
func (c *conn) Kick(reason string) {
	c.shutdown(websocket.StatusPolicyViolation, reason)
}

func (c *conn) shutdown(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeText = reason
		close(c.done)
	})
}

func (c *conn) writeLoop() {
	for {
		select {
		case env := <-c.events:
			if err := c.write(env); err != nil {
				return
			}

		case <-c.done:
			// Flush whatever is queued, then close.
			for {
				select {
				case env := <-c.events:
					if err := c.write(env); err != nil {
						return
					}
				default:
					c.ws.Close(c.closeCode, c.closeText)
					return
				}
			}
		}
	}
}

func (c *conn) write(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		log.Debug().
			Err(err).
			Str("connId", c.id).
			Msg("relay write failed")
		return err
	}
	return nil
}
