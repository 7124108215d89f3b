package control

import "net/http"

// withCORS wraps a handler with spec §6.1's CORS preflight behavior: an
// OPTIONS request gets a bare 204 with the configured headers when CORS is
// enabled; other methods get the headers set but pass through.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CORSEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
		}
		if r.Method == http.MethodOptions {
			if s.cfg.CORSEnabled {
				w.WriteHeader(http.StatusNoContent)
			} else {
				http.Error(w, "CORS disabled", http.StatusForbidden)
			}
			return
		}
		next(w, r)
	}
}
