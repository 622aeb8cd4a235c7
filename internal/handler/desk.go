package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/cse-psgtech/infinitum-helpdesk/internal/errors"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/httputil"
	"github.com/cse-psgtech/infinitum-helpdesk/internal/service"
)

type DeskHandler struct {
	sessions *service.DeskSessionService
}

func NewDeskHandler(sessions *service.DeskSessionService) *DeskHandler {
	return &DeskHandler{
		sessions: sessions,
	}
}

func (h *DeskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/session", h.CreateSession)

	return r
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	DeskID    string `json:"deskId"`
	Signature string `json:"signature"`
}

// POST /api/desk/session
//
// Mints a fresh pairing token for a desk. The desk embeds the token in a
// QR code; a scanner that reads the code joins the same relay room.
func (h *DeskHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	token, err := h.sessions.Issue()
	if err != nil {
		log.Error().Err(err).Msg("failed to issue desk session")
		httputil.WriteError(w, apperrors.Internal("Failed to create desk session").WithCause(err))
		return
	}

	log.Info().Str("desk_id", token.DeskID).Msg("desk session issued")

	writeJSON(w, http.StatusOK, createSessionResponse{
		Success:   true,
		DeskID:    token.DeskID,
		Signature: token.Signature,
	})
}
