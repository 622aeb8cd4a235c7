package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/model"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/relay"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/service"
)

// scannerIdleAfter is the no-scan window after which the desk assumes
// the scanner phone went away without a clean disconnect.
const scannerIdleAfter = 2 * time.Minute

const deskEventBuffer = 16

// DeskState tracks where the desk is in the pairing lifecycle.
type DeskState string

const (
	StateIdle              DeskState = "idle"
	StateRequesting        DeskState = "requesting"
	StateWaitingForScanner DeskState = "waiting-for-scanner"
	StateScannerConnected  DeskState = "scanner-connected"
)

type DeskEventKind string

const (
	DeskEventScannerConnected    DeskEventKind = "scanner-connected"
	DeskEventScannerDisconnected DeskEventKind = "scanner-disconnected"
	DeskEventScan                DeskEventKind = "scan"
	DeskEventScanCleared         DeskEventKind = "scan-cleared"
	DeskEventReplaced            DeskEventKind = "replaced"
	DeskEventError               DeskEventKind = "error"
	DeskEventClosed              DeskEventKind = "closed"
)

// DeskEvent is one notification from the desk's relay connection. For
// scan events the participant lookup result rides along: Participant is
// nil and Err set when the backend lookup failed.
type DeskEvent struct {
	Kind        DeskEventKind
	UniqueID    string
	Participant *model.Participant
	Eligible    bool
	Err         error
}

// DeskClient drives the desk side of pairing: it mints (or restores) a
// pairing token, joins the relay as the desk, and resolves incoming
// scans against the helpdesk backend.
type DeskClient struct {
	relayURL     string
	sessionURL   string
	httpc        *http.Client
	participants *service.ParticipantService
	store        SessionStore

	mu           sync.Mutex
	state        DeskState
	token        model.PairingToken
	ws           *websocket.Conn
	cancel       context.CancelFunc
	closing      bool
	lastActivity time.Time

	events chan DeskEvent
}

func NewDeskClient(relayURL, sessionURL string, participants *service.ParticipantService, store SessionStore) *DeskClient {
	return &DeskClient{
		relayURL:     relayURL,
		sessionURL:   sessionURL,
		httpc:        &http.Client{Timeout: 10 * time.Second},
		participants: participants,
		store:        store,
		state:        StateIdle,
		events:       make(chan DeskEvent, deskEventBuffer),
	}
}

// Events delivers relay notifications. The channel is buffered; events
// are dropped with a warning if the consumer falls behind.
func (c *DeskClient) Events() <-chan DeskEvent {
	return c.events
}

func (c *DeskClient) State() DeskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Token returns the active pairing token. Zero value while idle.
func (c *DeskClient) Token() model.PairingToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// EnableScannerMode brings the desk online: it obtains a pairing token,
// joins the relay, and returns the pairing URL to render as a QR code.
// A token persisted in the SessionStore is tried first; if the relay
// rejects it as expired, a fresh one is minted and the join retried.
func (c *DeskClient) EnableScannerMode(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return "", fmt.Errorf("scanner mode already enabled")
	}
	c.state = StateRequesting
	c.closing = false
	c.mu.Unlock()

	token, restored, err := c.obtainToken(ctx)
	if err != nil {
		c.setState(StateIdle)
		return "", err
	}

	ws, err := c.joinRelay(ctx, token)
	if err != nil && restored {
		log.Warn().Err(err).Msg("restored desk session rejected, minting a fresh one")
		if cerr := c.store.Clear(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to clear stale desk session")
		}
		token, err = c.issueToken(ctx)
		if err == nil {
			ws, err = c.joinRelay(ctx, token)
		}
	}
	if err != nil {
		c.setState(StateIdle)
		return "", err
	}

	if c.store != nil {
		if err := c.store.Save(token); err != nil {
			log.Warn().Err(err).Msg("failed to persist desk session")
		}
	}

	pairingURL, err := BuildPairingURL(c.relayURL, token)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "setup failed")
		c.setState(StateIdle)
		return "", err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.token = token
	c.ws = ws
	c.cancel = cancel
	c.state = StateWaitingForScanner
	c.lastActivity = time.Now()
	c.mu.Unlock()

	go c.readLoop(loopCtx, ws)

	log.Info().Str("desk_id", token.DeskID).Msg("scanner mode enabled")
	return pairingURL, nil
}

// DisableScannerMode drops the relay connection, discards the persisted
// pairing state, and returns to idle. The persisted token only survives
// unclean exits (a reload, a crash), where the next enable restores the
// same room.
func (c *DeskClient) DisableScannerMode() {
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to discard persisted desk session")
		}
	}

	c.mu.Lock()
	ws := c.ws
	cancel := c.cancel
	c.ws = nil
	c.cancel = nil
	c.state = StateIdle
	c.token = model.PairingToken{}
	c.closing = true
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "scanner mode disabled")
	}
}

// ResumeScanning tells the paired scanner to reopen its capture gate.
func (c *DeskClient) ResumeScanning(ctx context.Context) error {
	return c.send(ctx, relay.NewEvent(relay.EventResumeScanning))
}

// ClearScan tells both peers to discard the scan in progress.
func (c *DeskClient) ClearScan(ctx context.Context) error {
	return c.send(ctx, relay.NewEvent(relay.EventClearScan))
}

// ProvideKit marks the participant's kit as handed out on the backend.
func (c *DeskClient) ProvideKit(ctx context.Context, uniqueID string) (*model.KitResult, error) {
	return c.participants.MarkKitProvided(ctx, lookupID(uniqueID))
}

// ScannerIdle guesses whether the paired scanner has gone stale: no
// scan activity for a while usually means the phone locked or the page
// closed without a clean disconnect. The relay has no heartbeat, so
// this is a local heuristic, never an authoritative state.
func (c *DeskClient) ScannerIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateScannerConnected && time.Since(c.lastActivity) > scannerIdleAfter
}

func (c *DeskClient) setState(s DeskState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *DeskClient) obtainToken(ctx context.Context) (model.PairingToken, bool, error) {
	if c.store != nil {
		token, ok, err := c.store.Load()
		if err != nil {
			log.Warn().Err(err).Msg("failed to load persisted desk session")
		} else if ok {
			return token, true, nil
		}
	}

	token, err := c.issueToken(ctx)
	return token, false, err
}

func (c *DeskClient) issueToken(ctx context.Context) (model.PairingToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL, nil)
	if err != nil {
		return model.PairingToken{}, fmt.Errorf("build session request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return model.PairingToken{}, fmt.Errorf("request desk session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.PairingToken{}, fmt.Errorf("desk session endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		Success   bool   `json:"success"`
		DeskID    string `json:"deskId"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.PairingToken{}, fmt.Errorf("decode desk session response: %w", err)
	}
	if !body.Success || body.DeskID == "" || body.Signature == "" {
		return model.PairingToken{}, fmt.Errorf("desk session endpoint returned incomplete token")
	}

	return model.PairingToken{DeskID: body.DeskID, Signature: body.Signature}, nil
}

func (c *DeskClient) joinRelay(ctx context.Context, token model.PairingToken) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, c.relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	joinCtx, cancelJoin := context.WithTimeout(ctx, joinTimeout)
	defer cancelJoin()

	if err := writeEnvelope(joinCtx, ws, relay.NewJoinDesk(token.DeskID, token.Signature)); err != nil {
		ws.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("send join-desk: %w", err)
	}

	env, err := readEnvelope(joinCtx, ws)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("await join ack: %w", err)
	}

	switch env.Event {
	case relay.EventDeskJoined:
		return ws, nil
	case relay.EventError:
		msg := errorMessage(env)
		ws.Close(websocket.StatusNormalClosure, "join rejected")
		return nil, fmt.Errorf("relay rejected join: %s", msg)
	default:
		ws.Close(websocket.StatusInternalError, "unexpected join ack")
		return nil, fmt.Errorf("unexpected event %q while joining", env.Event)
	}
}

func (c *DeskClient) send(ctx context.Context, env relay.Envelope) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return fmt.Errorf("scanner mode not enabled")
	}
	return writeEnvelope(ctx, ws, env)
}

func (c *DeskClient) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		env, err := readEnvelope(ctx, ws)
		if err != nil {
			c.mu.Lock()
			deliberate := c.closing
			c.closing = true
			c.state = StateIdle
			c.ws = nil
			c.mu.Unlock()

			if !deliberate {
				c.emit(DeskEvent{Kind: DeskEventClosed, Err: err})
			}
			return
		}

		c.handle(ctx, env)
	}
}

func (c *DeskClient) handle(ctx context.Context, env relay.Envelope) {
	switch env.Event {
	case relay.EventScannerConnected:
		c.mu.Lock()
		c.state = StateScannerConnected
		c.lastActivity = time.Now()
		c.mu.Unlock()
		c.emit(DeskEvent{Kind: DeskEventScannerConnected})

	case relay.EventScannerDisconnected:
		c.mu.Lock()
		if c.state == StateScannerConnected {
			c.state = StateWaitingForScanner
		}
		c.mu.Unlock()
		c.emit(DeskEvent{Kind: DeskEventScannerDisconnected})

	case relay.EventScanAcknowledged:
		var p relay.ScanPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.UniqueID == "" {
			log.Warn().Msg("scan-acknowledged with unusable payload")
			return
		}
		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()
		c.emit(c.resolveScan(ctx, p.UniqueID))

	case relay.EventClearScan:
		c.emit(DeskEvent{Kind: DeskEventScanCleared})

	case relay.EventReplaced:
		// Another desk connection took over this session; the relay
		// kicks us right after this event.
		c.mu.Lock()
		c.closing = true
		c.state = StateIdle
		c.mu.Unlock()
		c.emit(DeskEvent{Kind: DeskEventReplaced})

	case relay.EventError:
		c.emit(DeskEvent{Kind: DeskEventError, Err: fmt.Errorf("%s", errorMessage(env))})

	default:
		log.Debug().Str("event", string(env.Event)).Msg("ignoring unexpected relay event")
	}
}

func (c *DeskClient) resolveScan(ctx context.Context, uniqueID string) DeskEvent {
	ev := DeskEvent{Kind: DeskEventScan, UniqueID: uniqueID}

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	participant, err := c.participants.FetchByID(fetchCtx, lookupID(uniqueID))
	if err != nil {
		ev.Err = err
		return ev
	}

	ev.Participant = participant
	ev.Eligible = participant.KitEligible()
	return ev
}

func (c *DeskClient) emit(ev DeskEvent) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("desk event dropped, consumer too slow")
	}
}

// lookupID strips the display prefix: the backend keys participants by
// the bare digits.
func lookupID(uniqueID string) string {
	return strings.TrimPrefix(uniqueID, "INF")
}
