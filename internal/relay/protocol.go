// Package relay implements the desk/scanner pairing relay: a WebSocket
// endpoint that authenticates connections against the desk session store,
// binds them into per-desk rooms, and forwards a closed set of events
// between the two peers of a room.
//
// The package is organized around the relay data flow:
//
//   - protocol.go: wire format, one message variant per event kind
//   - registry.go: room state and the join/scan/disconnect semantics
//   - server.go: WebSocket accept, per-connection read and write loops
package relay

import (
	"encoding/json"
	"fmt"
)

// EventType names one kind of relay event. The set is closed: anything
// else on the wire is rejected with an error event.
type EventType string

// Client to server.
const (
	EventJoinDesk        EventType = "join-desk"
	EventJoinScanner     EventType = "join-scanner"
	EventScanParticipant EventType = "scan-participant"
	EventResumeScanning  EventType = "resume-scanning"
	EventClearScan       EventType = "clear-scan"
)

// Server to client. EventResumeScanning and EventClearScan also travel
// this direction when forwarded to a peer.
const (
	EventDeskJoined          EventType = "desk-joined"
	EventScannerJoined       EventType = "scanner-joined"
	EventScannerConnected    EventType = "scanner-connected"
	EventScannerDisconnected EventType = "scanner-disconnected"
	EventDeskDisconnected    EventType = "desk-disconnected"
	EventScanAcknowledged    EventType = "scan-acknowledged"
	EventReplaced            EventType = "replaced"
	EventError               EventType = "error"
)

// Envelope is the JSON frame carried on the WebSocket, in both directions.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	DeskID    string `json:"deskId"`
	Signature string `json:"signature"`
}

type JoinedPayload struct {
	DeskID string `json:"deskId"`
}

type ScanPayload struct {
	UniqueID string `json:"uniqueId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ClientMessage is the tagged union of everything a client may send.
type ClientMessage interface {
	clientMessage()
}

type JoinDesk struct {
	DeskID    string
	Signature string
}

type JoinScanner struct {
	DeskID    string
	Signature string
}

type ScanParticipant struct {
	UniqueID string
}

type ResumeScanning struct{}

type ClearScan struct{}

func (JoinDesk) clientMessage()        {}
func (JoinScanner) clientMessage()     {}
func (ScanParticipant) clientMessage() {}
func (ResumeScanning) clientMessage()  {}
func (ClearScan) clientMessage()       {}

// DecodeClientMessage parses a wire frame into its message variant.
// Unknown event names and malformed payloads are errors; the caller
// answers those with an error event rather than dropping the connection.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventJoinDesk:
		var p JoinPayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		return JoinDesk{DeskID: p.DeskID, Signature: p.Signature}, nil

	case EventJoinScanner:
		var p JoinPayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		return JoinScanner{DeskID: p.DeskID, Signature: p.Signature}, nil

	case EventScanParticipant:
		var p ScanPayload
		if err := unmarshalPayload(env.Data, &p); err != nil {
			return nil, err
		}
		return ScanParticipant{UniqueID: p.UniqueID}, nil

	case EventResumeScanning:
		return ResumeScanning{}, nil

	case EventClearScan:
		return ClearScan{}, nil

	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

func unmarshalPayload(data json.RawMessage, dest any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Envelope constructors for the server-to-client events.

func NewEvent(event EventType) Envelope {
	return Envelope{Event: event}
}

func NewDeskJoined(deskID string) Envelope {
	return newEnvelope(EventDeskJoined, JoinedPayload{DeskID: deskID})
}

func NewScannerJoined(deskID string) Envelope {
	return newEnvelope(EventScannerJoined, JoinedPayload{DeskID: deskID})
}

func NewScanAcknowledged(uniqueID string) Envelope {
	return newEnvelope(EventScanAcknowledged, ScanPayload{UniqueID: uniqueID})
}

func NewError(message string) Envelope {
	return newEnvelope(EventError, ErrorPayload{Message: message})
}

// Client-side constructors, used by the desk and scanner clients.

func NewJoinDesk(deskID, signature string) Envelope {
	return newEnvelope(EventJoinDesk, JoinPayload{DeskID: deskID, Signature: signature})
}

func NewJoinScanner(deskID, signature string) Envelope {
	return newEnvelope(EventJoinScanner, JoinPayload{DeskID: deskID, Signature: signature})
}

func NewScanParticipant(uniqueID string) Envelope {
	return newEnvelope(EventScanParticipant, ScanPayload{UniqueID: uniqueID})
}

func newEnvelope(event EventType, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload types are plain structs of strings; this cannot fail.
		panic(fmt.Sprintf("marshal %s payload: %v", event, err))
	}
	return Envelope{Event: event, Data: data}
}
