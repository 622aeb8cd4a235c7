package middleware

import "net/http"

// defaultMaxBody caps request bodies at 64KB. Nothing in this server
// accepts a meaningful body (issuance is an empty POST), so the cap is
// tight and exists to shed junk payloads early.
const defaultMaxBody = 64 << 10

// BodyLimit rejects requests whose declared length exceeds max and caps
// the readable body for the rest. A non-positive max selects the default.
func BodyLimit(max int64) func(http.Handler) http.Handler {
	if max <= 0 {
		max = defaultMaxBody
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
					"error": "Request body too large",
				})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
