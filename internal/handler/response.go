package handler

import (
	"net/http"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}
