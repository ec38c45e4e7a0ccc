package security

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error envelope returned when the middleware
// short-circuits a request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the message and machine-readable type of a
// middleware rejection.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteError writes a JSON error response with the given status.
func WriteError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Message: message, Type: errType}})
}

// Middleware wraps next with the request hardening pipeline: defensive
// headers on every response, body size ceiling (413), path traversal
// rejection (400), and scanner probe detection (logged, not blocked, so
// probes fail naturally without fingerprinting the layer).
func (s *State) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		ApplyHeaders(w.Header())

		if !s.CheckBodySize(r) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request entity too large", "oversized")
			return
		}

		if s.DetectPathTraversal(r.URL.RequestURI(), ip) {
			WriteError(w, http.StatusBadRequest, "bad request", "invalid_path")
			return
		}

		s.DetectSuspiciousRequest(r.URL.RequestURI(), ip)

		next.ServeHTTP(w, r)
	})
}
