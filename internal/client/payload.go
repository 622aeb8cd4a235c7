// Package client provides the two programmatic peers of the pairing
// relay: the desk client that mints a pairing token and waits for scans,
// and the scanner client that joins from a scanned QR payload and
// forwards participant IDs.
package client

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/model"
)

// BuildPairingURL renders the QR payload a desk displays: the relay URL
// with the pairing token in the query string.
func BuildPairingURL(relayURL string, token model.PairingToken) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}

	q := u.Query()
	q.Set("deskId", token.DeskID)
	q.Set("signature", token.Signature)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ParsePairingURL extracts the pairing token from a scanned QR payload.
func ParsePairingURL(raw string) (model.PairingToken, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return model.PairingToken{}, fmt.Errorf("parse pairing url: %w", err)
	}

	q := u.Query()
	token := model.PairingToken{
		DeskID:    q.Get("deskId"),
		Signature: q.Get("signature"),
	}
	if token.DeskID == "" || token.Signature == "" {
		return model.PairingToken{}, fmt.Errorf("pairing url missing deskId or signature")
	}

	return token, nil
}

var participantDigits = regexp.MustCompile(`(\d{4})$`)

// ExtractParticipantID normalizes a decoded badge value into a
// participant ID: the trailing four digits prefixed with "INF".
// Badges encode IDs in a few legacy formats; the trailing digits are
// the stable part.
func ExtractParticipantID(decoded string) (string, error) {
	m := participantDigits.FindStringSubmatch(strings.TrimSpace(decoded))
	if m == nil {
		return "", fmt.Errorf("no participant digits in %q", decoded)
	}
	return "INF" + m[1], nil
}
