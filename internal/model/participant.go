package model

// Participant mirrors the record returned by the helpdesk backend's
// participant lookup. Field names follow the backend's wire format.
type Participant struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	College       string `json:"college"`
	PaymentStatus bool   `json:"payment_status"`
	KitType       string `json:"kit_type"`
	KitProvided   bool   `json:"kit_provided"`
}

// KitEligible reports whether a kit may be provided: payment completed
// and no kit handed out yet.
func (p *Participant) KitEligible() bool {
	return p.PaymentStatus && !p.KitProvided
}

// KitResult is the backend's response to a mark-kit-provided call.
type KitResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	KitProvided   bool   `json:"kit_provided"`
}
