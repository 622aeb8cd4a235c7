package model

import "time"

// DeskSession is the server-side record behind a pairing token, keyed by
// deskId in the session store. Only the signature and issuance time are
// kept; the deskId itself is the map key.
type DeskSession struct {
	Signature string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// PairingToken is the {deskId, signature} pair handed to the desk on
// issuance and embedded in the scannable payload. Possession of both
// values is required to join a room.
type PairingToken struct {
	DeskID    string `json:"deskId"`
	Signature string `json:"signature"`
}
