package relay

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cse-psgtech/infinitum-helpdesk/internal/errors"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/model"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/service"
)

type fakePeer struct {
	id         string
	events     []Envelope
	kicked     bool
	kickReason string
}

func (p *fakePeer) ID() string        { return p.id }
func (p *fakePeer) Send(env Envelope) { p.events = append(p.events, env) }
func (p *fakePeer) Kick(reason string) {
	p.kicked = true
	p.kickReason = reason
}

func (p *fakePeer) eventTypes() []EventType {
	types := make([]EventType, 0, len(p.events))
	for _, env := range p.events {
		types = append(types, env.Event)
	}
	return types
}

func (p *fakePeer) countEvents(event EventType) int {
	n := 0
	for _, env := range p.events {
		if env.Event == event {
			n++
		}
	}
	return n
}

var peerSeq int

func newFakePeer() *fakePeer {
	peerSeq++
	return &fakePeer{id: fmt.Sprintf("peer-%d", peerSeq)}
}

func newTestRegistry(t *testing.T) (*Registry, *service.DeskSessionService, model.PairingToken) {
	t.Helper()
	sessions := service.NewDeskSessionService(24 * time.Hour)
	token, err := sessions.Issue()
	require.NoError(t, err)
	return NewRegistry(sessions), sessions, token
}

func TestJoinDesk(t *testing.T) {
	t.Run("valid token creates room and confirms binding", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk := newFakePeer()

		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		assert.Equal(t, []EventType{EventDeskJoined}, desk.eventTypes())
		assert.Equal(t, 1, r.RoomCount())
	})

	t.Run("invalid signature rejected without room mutation", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk := newFakePeer()

		err := r.JoinDesk(desk, token.DeskID, "wrong")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidDeskSession, apperrors.GetCode(err))
		assert.Empty(t, desk.events)
		assert.Equal(t, 0, r.RoomCount())
	})

	t.Run("expired token rejected", func(t *testing.T) {
		sessions := service.NewDeskSessionService(time.Nanosecond)
		token, err := sessions.Issue()
		require.NoError(t, err)
		time.Sleep(time.Millisecond)

		r := NewRegistry(sessions)
		err = r.JoinDesk(newFakePeer(), token.DeskID, token.Signature)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidDeskSession, apperrors.GetCode(err))
	})

	t.Run("rejoining a room with a scanner reports scanner presence", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()

		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		r.Disconnect(desk)
		assert.Equal(t, []EventType{EventDeskDisconnected}, scanner.eventTypes()[1:])

		rejoined := newFakePeer()
		require.NoError(t, r.JoinDesk(rejoined, token.DeskID, token.Signature))
		assert.Equal(t, []EventType{EventDeskJoined, EventScannerConnected}, rejoined.eventTypes())
	})

	t.Run("duplicate join displaces the previous desk with a replaced notice", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		first, second := newFakePeer(), newFakePeer()

		require.NoError(t, r.JoinDesk(first, token.DeskID, token.Signature))
		require.NoError(t, r.JoinDesk(second, token.DeskID, token.Signature))

		assert.Equal(t, []EventType{EventDeskJoined, EventReplaced}, first.eventTypes())
		assert.True(t, first.kicked)
		assert.Contains(t, first.kickReason, "replaced")
		assert.Equal(t, []EventType{EventDeskJoined}, second.eventTypes())

		// The displaced connection's disconnect must not disturb the room.
		r.Disconnect(first)
		assert.Equal(t, 1, r.RoomCount())
	})

	t.Run("connection cannot rebind to a different room", func(t *testing.T) {
		r, sessions, token := newTestRegistry(t)
		other, err := sessions.Issue()
		require.NoError(t, err)

		desk := newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))

		err = r.JoinDesk(desk, other.DeskID, other.Signature)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	})
}

func TestJoinScanner(t *testing.T) {
	t.Run("fails when no desk has joined and creates no room", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		scanner := newFakePeer()

		err := r.JoinScanner(scanner, token.DeskID, token.Signature)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeDeskSessionNotFound, apperrors.GetCode(err))
		assert.Equal(t, 0, r.RoomCount())
	})

	t.Run("pairing delivers exactly one scanner-connected and one scanner-joined", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()

		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		assert.Equal(t, 1, desk.countEvents(EventScannerConnected))
		assert.Equal(t, 1, scanner.countEvents(EventScannerJoined))
	})

	t.Run("invalid signature rejected", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk := newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))

		err := r.JoinScanner(newFakePeer(), token.DeskID, "wrong")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidDeskSession, apperrors.GetCode(err))
	})

	t.Run("duplicate scanner displaces the previous one", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, first, second := newFakePeer(), newFakePeer(), newFakePeer()

		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(first, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(second, token.DeskID, token.Signature))

		assert.Equal(t, EventReplaced, first.events[len(first.events)-1].Event)
		assert.True(t, first.kicked)
		assert.Equal(t, 2, desk.countEvents(EventScannerConnected))
	})
}

func TestScanParticipant(t *testing.T) {
	pair := func(t *testing.T) (*Registry, *fakePeer, *fakePeer) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))
		return r, desk, scanner
	}

	t.Run("relays the ack to both peers and nobody else", func(t *testing.T) {
		r, desk, scanner := pair(t)

		bystander := newFakePeer()
		require.NoError(t, r.ScanParticipant(scanner, "INF1234"))

		assert.Equal(t, 1, desk.countEvents(EventScanAcknowledged))
		assert.Equal(t, 1, scanner.countEvents(EventScanAcknowledged))
		assert.Empty(t, bystander.events)

		last := desk.events[len(desk.events)-1]
		assert.JSONEq(t, `{"uniqueId":"INF1234"}`, string(last.Data))
	})

	t.Run("rejected from the desk role with no ack to anyone", func(t *testing.T) {
		r, desk, scanner := pair(t)

		err := r.ScanParticipant(desk, "INF1234")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeRoleNotScanner, apperrors.GetCode(err))
		assert.Equal(t, 0, desk.countEvents(EventScanAcknowledged))
		assert.Equal(t, 0, scanner.countEvents(EventScanAcknowledged))
	})

	t.Run("rejected from an unbound connection", func(t *testing.T) {
		r, _, _ := pair(t)

		err := r.ScanParticipant(newFakePeer(), "INF1234")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeRoleNotScanner, apperrors.GetCode(err))
	})

	t.Run("echoed to the scanner alone while the desk is away", func(t *testing.T) {
		r, desk, scanner := pair(t)

		r.Disconnect(desk)
		require.NoError(t, r.ScanParticipant(scanner, "INF1234"))
		assert.Equal(t, 1, scanner.countEvents(EventScanAcknowledged))
		assert.Equal(t, 0, desk.countEvents(EventScanAcknowledged))
	})

	t.Run("rejected once the room is gone", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		r.Disconnect(desk)
		r.Disconnect(scanner)

		err := r.ScanParticipant(scanner, "INF1234")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeRoleNotScanner, apperrors.GetCode(err))
	})
}

func TestResumeScanning(t *testing.T) {
	t.Run("forwarded to the scanner only", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		require.NoError(t, r.ResumeScanning(desk))
		assert.Equal(t, 1, scanner.countEvents(EventResumeScanning))
		assert.Equal(t, 0, desk.countEvents(EventResumeScanning))
	})

	t.Run("rejected from the scanner role", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		err := r.ResumeScanning(scanner)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeRoleNotDesk, apperrors.GetCode(err))
	})

	t.Run("rejected when no scanner is connected", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk := newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))

		err := r.ResumeScanning(desk)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeScannerNotConnected, apperrors.GetCode(err))
	})
}

func TestClearScan(t *testing.T) {
	t.Run("forwarded to both peers from either role", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		require.NoError(t, r.ClearScan(scanner))
		assert.Equal(t, 1, desk.countEvents(EventClearScan))
		assert.Equal(t, 1, scanner.countEvents(EventClearScan))

		require.NoError(t, r.ClearScan(desk))
		assert.Equal(t, 2, desk.countEvents(EventClearScan))
		assert.Equal(t, 2, scanner.countEvents(EventClearScan))
	})

	t.Run("rejected from an unbound connection", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)

		err := r.ClearScan(newFakePeer())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeDeskSessionNotFound, apperrors.GetCode(err))
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("desk leaving notifies the scanner and keeps the room", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		r.Disconnect(desk)
		assert.Equal(t, 1, scanner.countEvents(EventDeskDisconnected))
		assert.Equal(t, 1, r.RoomCount())
	})

	t.Run("scanner leaving notifies the desk and keeps the room", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		r.Disconnect(scanner)
		assert.Equal(t, 1, desk.countEvents(EventScannerDisconnected))
		assert.Equal(t, 1, r.RoomCount())
	})

	t.Run("last peer leaving deletes the room", func(t *testing.T) {
		r, _, token := newTestRegistry(t)
		desk, scanner := newFakePeer(), newFakePeer()
		require.NoError(t, r.JoinDesk(desk, token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(scanner, token.DeskID, token.Signature))

		r.Disconnect(desk)
		r.Disconnect(scanner)
		assert.Equal(t, 0, r.RoomCount())

		// With no room, a fresh scanner join must fail until a desk returns.
		err := r.JoinScanner(newFakePeer(), token.DeskID, token.Signature)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeDeskSessionNotFound, apperrors.GetCode(err))

		require.NoError(t, r.JoinDesk(newFakePeer(), token.DeskID, token.Signature))
		require.NoError(t, r.JoinScanner(newFakePeer(), token.DeskID, token.Signature))
	})

	t.Run("unbound connection is a no-op", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)
		r.Disconnect(newFakePeer())
		assert.Equal(t, 0, r.RoomCount())
	})
}
