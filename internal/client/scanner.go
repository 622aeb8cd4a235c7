package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/model"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/relay"
)

// FrameDecoder turns a camera frame into the text encoded in a barcode
// or QR code. ok is false when the frame holds no readable code.
type FrameDecoder interface {
	Decode(frame []byte) (value string, ok bool)
}

// FrameDecoderFunc adapts a function to the FrameDecoder interface.
type FrameDecoderFunc func(frame []byte) (string, bool)

func (f FrameDecoderFunc) Decode(frame []byte) (string, bool) {
	return f(frame)
}

// ErrScanningPaused is returned by HandleFrame between a sent scan and
// the desk's resume-scanning.
var ErrScanningPaused = fmt.Errorf("scanning paused, waiting for desk")

// ScannerClient drives the phone side of pairing: it joins the relay
// room named by a scanned pairing URL and forwards participant IDs from
// decoded badge frames. After each sent scan the capture gate closes
// until the desk sends resume-scanning, so one badge held in front of
// the camera yields one scan.
type ScannerClient struct {
	relayURL string
	token    model.PairingToken
	decoder  FrameDecoder

	mu     sync.Mutex
	ws     *websocket.Conn
	paused bool
	failed error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScannerClient builds a scanner for a scanned pairing URL.
func NewScannerClient(pairingURL string, decoder FrameDecoder) (*ScannerClient, error) {
	token, err := ParsePairingURL(pairingURL)
	if err != nil {
		return nil, err
	}

	// The pairing URL doubles as the relay endpoint; the token rides in
	// the query string but join-scanner carries it explicitly.
	return &ScannerClient{
		relayURL: pairingURL,
		token:    token,
		decoder:  decoder,
	}, nil
}

// Connect dials the relay and joins the desk's room. It returns once
// the relay acknowledges the join.
func (c *ScannerClient) Connect(ctx context.Context) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()

	ws, _, err := websocket.Dial(dialCtx, c.relayURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	joinCtx, cancelJoin := context.WithTimeout(ctx, joinTimeout)
	defer cancelJoin()

	if err := writeEnvelope(joinCtx, ws, relay.NewJoinScanner(c.token.DeskID, c.token.Signature)); err != nil {
		ws.Close(websocket.StatusInternalError, "join failed")
		return fmt.Errorf("send join-scanner: %w", err)
	}

	env, err := readEnvelope(joinCtx, ws)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "join failed")
		return fmt.Errorf("await join ack: %w", err)
	}

	switch env.Event {
	case relay.EventScannerJoined:
	case relay.EventError:
		msg := errorMessage(env)
		ws.Close(websocket.StatusNormalClosure, "join rejected")
		return fmt.Errorf("relay rejected join: %s", msg)
	default:
		ws.Close(websocket.StatusInternalError, "unexpected join ack")
		return fmt.Errorf("unexpected event %q while joining", env.Event)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.ws = ws
	c.cancel = cancel
	c.paused = false
	c.failed = nil
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(loopCtx, ws)

	log.Info().Str("desk_id", c.token.DeskID).Msg("scanner joined desk")
	return nil
}

// HandleFrame processes one camera frame. A decoded badge becomes a
// scan-participant event; the returned ID is what was sent. Frames with
// no readable code return ("", nil). While the gate is closed the frame
// is dropped with ErrScanningPaused.
func (c *ScannerClient) HandleFrame(ctx context.Context, frame []byte) (string, error) {
	c.mu.Lock()
	ws := c.ws
	paused := c.paused
	failed := c.failed
	c.mu.Unlock()

	if failed != nil {
		return "", failed
	}
	if ws == nil {
		return "", fmt.Errorf("scanner not connected")
	}
	if paused {
		return "", ErrScanningPaused
	}

	value, ok := c.decoder.Decode(frame)
	if !ok {
		return "", nil
	}

	id, err := ExtractParticipantID(value)
	if err != nil {
		// Unreadable badge format: keep scanning.
		log.Debug().Err(err).Msg("decoded frame had no participant ID")
		return "", nil
	}

	if err := writeEnvelope(ctx, ws, relay.NewScanParticipant(id)); err != nil {
		return "", fmt.Errorf("send scan: %w", err)
	}

	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()

	return id, nil
}

// Paused reports whether the capture gate is closed.
func (c *ScannerClient) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Err returns the terminal failure, if any. A relay error event ends
// the scanning session; the operator rescans the QR code to start over.
func (c *ScannerClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// Done is closed when the relay connection ends for any reason.
func (c *ScannerClient) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *ScannerClient) Close() {
	c.mu.Lock()
	ws := c.ws
	cancel := c.cancel
	c.ws = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "scanner closed")
	}
}

func (c *ScannerClient) readLoop(ctx context.Context, ws *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.ws == ws {
			c.ws = nil
		}
		done := c.done
		c.mu.Unlock()
		if done != nil {
			close(done)
		}
	}()

	for {
		env, err := readEnvelope(ctx, ws)
		if err != nil {
			return
		}

		switch env.Event {
		case relay.EventResumeScanning:
			c.mu.Lock()
			c.paused = false
			c.mu.Unlock()

		case relay.EventClearScan:
			// Pending scan state is reset on both UIs, but capture stays
			// gated until the desk explicitly resumes scanning.
			log.Debug().Msg("clear-scan received")

		case relay.EventDeskDisconnected:
			log.Info().Msg("desk disconnected, waiting for it to return")

		case relay.EventReplaced:
			c.fail(fmt.Errorf("another scanner took over this desk"))

		case relay.EventError:
			c.fail(fmt.Errorf("%s", errorMessage(env)))

		default:
			log.Debug().Str("event", string(env.Event)).Msg("ignoring unexpected relay event")
		}
	}
}

func (c *ScannerClient) fail(err error) {
	c.mu.Lock()
	if c.failed == nil {
		c.failed = err
	}
	c.mu.Unlock()
	log.Warn().Err(err).Msg("scanner session failed")
}
