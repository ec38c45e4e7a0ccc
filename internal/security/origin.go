package security

import (
	"fmt"
	"net/http"
	"net/url"
)

// OriginDecision is the outcome of socket-upgrade origin validation.
type OriginDecision struct {
	Valid  bool
	Reason string
}

// ValidateOrigin validates the Origin header of a socket upgrade request.
//
// A missing header is accepted: non-browser clients (curl, native apps)
// send none, and same-loopback browser clients may omit it. An explicit
// allow-list of scheme://host[:port] strings is checked first; loopback
// origins are accepted unless disabled; anything else, including a
// malformed header, is rejected with a reason.
func (s *State) ValidateOrigin(r *http.Request) OriginDecision {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return OriginDecision{Valid: true}
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return OriginDecision{Reason: "malformed origin header"}
	}

	if len(s.config.AllowedOrigins) > 0 {
		originHost := parsed.Scheme + "://" + parsed.Host
		for _, allowed := range s.config.AllowedOrigins {
			if allowed == originHost {
				return OriginDecision{Valid: true}
			}
		}
	}

	if !s.config.DisableLoopbackOrigin && IsLoopbackHost(parsed.Hostname()) {
		return OriginDecision{Valid: true}
	}

	return OriginDecision{Reason: fmt.Sprintf("origin %s not allowed", origin)}
}
