package relay

import (
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/cse-psgtech/infinitum-helpdesk/internal/errors"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/service"
)

// Role is a connection's fixed position in a room.
type Role string

const (
	RoleDesk    Role = "desk"
	RoleScanner Role = "scanner"
)

// Peer is the registry's view of one live connection. Send must never
// block; Kick closes the transport after pending events have flushed.
type Peer interface {
	ID() string
	Send(Envelope)
	Kick(reason string)
}

// Room pairs at most one desk connection with at most one scanner
// connection under a shared deskId.
type Room struct {
	desk    Peer
	scanner Peer
}

type binding struct {
	deskID string
	role   Role
}

// Registry owns all room state. One mutex serializes every mutation, so
// joins, scans and disconnects for a room can never interleave
// inconsistently. Peer sends are buffered and non-blocking, which keeps
// them safe to issue under the lock.
type Registry struct {
	mu       sync.Mutex
	sessions *service.DeskSessionService
	rooms    map[string]*Room
	bindings map[Peer]binding
}

func NewRegistry(sessions *service.DeskSessionService) *Registry {
	return &Registry{
		sessions: sessions,
		rooms:    make(map[string]*Room),
		bindings: make(map[Peer]binding),
	}
}

// JoinDesk validates the pairing token and binds p as the desk of its
// room, creating the room if needed. A previously bound desk connection
// is told it was replaced and kicked. If a scanner is already present the
// joining desk immediately learns about it.
func (r *Registry) JoinDesk(p Peer, deskID, signature string) error {
	if !r.sessions.Validate(deskID, signature) {
		return apperrors.InvalidDeskSession()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRebind(p, deskID, RoleDesk); err != nil {
		return err
	}

	room := r.rooms[deskID]
	if room == nil {
		room = &Room{}
		r.rooms[deskID] = room
		log.Info().Str("deskId", deskID).Msg("room created")
	}

	if room.desk != nil && room.desk != p {
		r.displace(room.desk, "desk")
		room.desk = nil
	}

	room.desk = p
	r.bindings[p] = binding{deskID: deskID, role: RoleDesk}

	p.Send(NewDeskJoined(deskID))
	if room.scanner != nil {
		p.Send(NewEvent(EventScannerConnected))
	}

	log.Info().
		Str("deskId", deskID).
		Str("connId", p.ID()).
		Msg("desk joined")
	return nil
}

// JoinScanner validates the pairing token and binds p as the scanner of
// an existing room. The room must have been created by a prior desk join.
func (r *Registry) JoinScanner(p Peer, deskID, signature string) error {
	if !r.sessions.Validate(deskID, signature) {
		return apperrors.InvalidDeskSession()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRebind(p, deskID, RoleScanner); err != nil {
		return err
	}

	room := r.rooms[deskID]
	if room == nil {
		return apperrors.DeskSessionNotFound()
	}

	if room.scanner != nil && room.scanner != p {
		r.displace(room.scanner, "scanner")
		room.scanner = nil
	}

	room.scanner = p
	r.bindings[p] = binding{deskID: deskID, role: RoleScanner}

	p.Send(NewScannerJoined(deskID))
	if room.desk != nil {
		room.desk.Send(NewEvent(EventScannerConnected))
	}

	log.Info().
		Str("deskId", deskID).
		Str("connId", p.ID()).
		Msg("scanner joined")
	return nil
}

// ScanParticipant relays a scanned identifier to both peers of the
// caller's room, best-effort to whichever are present. Only the scanner
// may send scans; the echo back to the scanner lets the phone show its
// own success state even while the desk is briefly away.
func (r *Registry) ScanParticipant(p Peer, uniqueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, bound := r.bindings[p]
	if !bound || b.role != RoleScanner {
		return apperrors.RoleNotScanner()
	}

	room := r.rooms[b.deskID]
	if room == nil {
		return apperrors.DeskNotConnected()
	}

	ack := NewScanAcknowledged(uniqueID)
	if room.desk != nil {
		room.desk.Send(ack)
	}
	if room.scanner != nil {
		room.scanner.Send(ack)
	}

	log.Debug().
		Str("deskId", b.deskID).
		Str("uniqueId", uniqueID).
		Msg("scan relayed")
	return nil
}

// ResumeScanning forwards the desk's resume signal to the scanner, which
// restarts frame capture after the desk has consumed the previous scan.
func (r *Registry) ResumeScanning(p Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, bound := r.bindings[p]
	if !bound || b.role != RoleDesk {
		return apperrors.RoleNotDesk()
	}

	room := r.rooms[b.deskID]
	if room == nil || room.scanner == nil {
		return apperrors.ScannerNotConnected()
	}

	room.scanner.Send(NewEvent(EventResumeScanning))
	return nil
}

// ClearScan forwards a reset signal to whichever peers are present.
// Either role may send it; the caller only needs a room binding.
func (r *Registry) ClearScan(p Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, bound := r.bindings[p]
	if !bound {
		return apperrors.DeskSessionNotFound()
	}

	room := r.rooms[b.deskID]
	if room == nil {
		return apperrors.DeskSessionNotFound()
	}

	reset := NewEvent(EventClearScan)
	if room.desk != nil {
		room.desk.Send(reset)
	}
	if room.scanner != nil {
		room.scanner.Send(reset)
	}
	return nil
}

// Disconnect clears p's slot, notifies the remaining peer, and deletes
// the room once both slots are empty. Safe to call for connections that
// never joined, and for displaced connections whose binding is gone.
func (r *Registry) Disconnect(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, bound := r.bindings[p]
	if !bound {
		return
	}
	delete(r.bindings, p)

	room := r.rooms[b.deskID]
	if room == nil {
		return
	}

	switch b.role {
	case RoleDesk:
		if room.desk != p {
			return
		}
		room.desk = nil
		if room.scanner != nil {
			room.scanner.Send(NewEvent(EventDeskDisconnected))
		} else {
			delete(r.rooms, b.deskID)
			log.Info().Str("deskId", b.deskID).Msg("room deleted")
		}

	case RoleScanner:
		if room.scanner != p {
			return
		}
		room.scanner = nil
		if room.desk != nil {
			room.desk.Send(NewEvent(EventScannerDisconnected))
		} else {
			delete(r.rooms, b.deskID)
			log.Info().Str("deskId", b.deskID).Msg("room deleted")
		}
	}

	log.Info().
		Str("deskId", b.deskID).
		Str("role", string(b.role)).
		Str("connId", p.ID()).
		Msg("peer disconnected")
}

// RoomCount reports the number of active rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// checkRebind enforces that a connection's (deskId, role) binding is
// immutable once established. Re-sending the same join is tolerated.
func (r *Registry) checkRebind(p Peer, deskID string, role Role) error {
	b, bound := r.bindings[p]
	if bound && (b.deskID != deskID || b.role != role) {
		return apperrors.New(apperrors.ErrCodeConflict, "Connection already bound to a room")
	}
	return nil
}

// displace tells a connection it lost its slot to a newer join, then
// kicks it. Its binding is removed first so its disconnect path cannot
// touch the room again.
func (r *Registry) displace(old Peer, slot string) {
	delete(r.bindings, old)
	old.Send(NewEvent(EventReplaced))
	old.Kick("replaced by a newer " + slot + " connection")
	log.Warn().
		Str("connId", old.ID()).
		Str("slot", slot).
		Msg("connection displaced")
}
