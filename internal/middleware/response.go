package middleware

import (
	"net/http"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
