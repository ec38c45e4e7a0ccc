package security

import (
	"fmt"
	"net/http"

	"github.com/thesecretlab-dev/anima-dashboard/internal/audit"
)

// CheckBodySize inspects a request's declared Content-Length against the
// configured ceiling. Absence of the header does not itself reject;
// streaming bodies are bounded elsewhere. A rejected request is audited
// as oversized_request.
func (s *State) CheckBodySize(r *http.Request) bool {
	if r.ContentLength > s.config.MaxRequestBodyBytes {
		s.ring.RecordType(audit.EventOversizedRequest, ClientIP(r),
			fmt.Sprintf("content-length %d exceeds %d limit", r.ContentLength, s.config.MaxRequestBodyBytes))
		return false
	}
	return true
}

// FrameOversized classifies an inbound socket frame against the frame
// ceiling. The layer only classifies; closing the connection is the
// caller's responsibility.
func (s *State) FrameOversized(size int) bool {
	return int64(size) > s.config.MaxSocketFrameBytes
}

// RecordSocketRejected audits a rejected socket connection or frame.
func (s *State) RecordSocketRejected(ip, reason string) {
	s.ring.RecordType(audit.EventWSRejected, ip, reason)
}
