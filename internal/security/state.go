// Package security implements the hardening layer every inbound request
// and socket message passes through before it can reach run dispatch:
// defensive response headers, origin validation, size limits, traversal
// and scanner detection, auth rate limiting, an exec command blocklist,
// and the audit trail tying them together.
package security

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/thesecretlab-dev/anima-dashboard/internal/audit"
	"github.com/thesecretlab-dev/anima-dashboard/internal/ratelimit"
)

// Default size ceilings.
const (
	DefaultMaxRequestBodyBytes = 10 * 1024 * 1024 // 10 MiB
	DefaultMaxSocketFrameBytes = 5 * 1024 * 1024  // 5 MiB
)

// Config configures the hardening layer.
type Config struct {
	// MaxRequestBodyBytes rejects requests whose declared Content-Length
	// exceeds it. Defaults to 10 MiB.
	MaxRequestBodyBytes int64 `yaml:"max_request_body_bytes"`

	// MaxSocketFrameBytes classifies inbound socket frames larger than
	// it as oversized. Defaults to 5 MiB.
	MaxSocketFrameBytes int64 `yaml:"max_socket_frame_bytes"`

	// AuditMaxEntries bounds the in-memory audit ring. Defaults to 10000.
	AuditMaxEntries int `yaml:"audit_max_entries"`

	// AuthRateLimit configures the per-IP auth attempt window.
	AuthRateLimit ratelimit.Config `yaml:"auth_rate_limit"`

	// AllowedOrigins is the explicit scheme://host[:port] allow-list for
	// socket upgrades.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowLoopbackOrigin accepts loopback-hostname origins. Defaults to
	// true; set DisableLoopbackOrigin to turn it off.
	DisableLoopbackOrigin bool `yaml:"disable_loopback_origin"`
}

// DefaultConfig returns the default hardening configuration.
func DefaultConfig() Config {
	return Config{
		MaxRequestBodyBytes: DefaultMaxRequestBodyBytes,
		MaxSocketFrameBytes: DefaultMaxSocketFrameBytes,
		AuditMaxEntries:     audit.DefaultMaxEntries,
		AuthRateLimit:       ratelimit.DefaultConfig(),
	}
}

// State is the process-lifetime mutable state of the hardening layer:
// the audit ring and the per-IP auth attempt windows. It is injected
// into the middleware rather than held as a package singleton, so tests
// run with isolated state and deployments can shard it.
//
// State is safe for concurrent use. Nothing is persisted; everything
// resets on process restart.
type State struct {
	config Config
	ring   *audit.Ring
	auth   *ratelimit.AuthLimiter
}

// NewState creates hardening state from config. If logger is nil,
// slog.Default() is used for the audit mirror stream.
func NewState(config Config, logger *slog.Logger) *State {
	if config.MaxRequestBodyBytes <= 0 {
		config.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	if config.MaxSocketFrameBytes <= 0 {
		config.MaxSocketFrameBytes = DefaultMaxSocketFrameBytes
	}
	if config.AuthRateLimit.Window == 0 && config.AuthRateLimit.MaxAttempts == 0 {
		config.AuthRateLimit = ratelimit.DefaultConfig()
	}
	return &State{
		config: config,
		ring:   audit.NewRing(config.AuditMaxEntries, logger),
		auth:   ratelimit.NewAuthLimiter(config.AuthRateLimit),
	}
}

// Audit exposes the audit trail.
func (s *State) Audit() *audit.Ring {
	return s.ring
}

// Config returns the effective configuration.
func (s *State) Config() Config {
	return s.config
}

// CheckAuthRateLimit records an auth attempt for ip and decides whether
// it may proceed. The transition into the blocked state is audited
// exactly once per block.
func (s *State) CheckAuthRateLimit(ip string) ratelimit.Decision {
	decision := s.auth.Check(ip)
	if decision.FirstBlock {
		s.ring.RecordType(audit.EventRateLimited, ip,
			fmt.Sprintf("auth attempts exceeded %d in %s window", s.config.AuthRateLimit.MaxAttempts, s.config.AuthRateLimit.Window))
	}
	return decision
}

// RecordAuthSuccess clears the IP's attempt window and audits the event.
func (s *State) RecordAuthSuccess(ip string) {
	s.auth.Success(ip)
	s.ring.RecordType(audit.EventAuthSuccess, ip, "authentication successful")
}

// RecordAuthFailure audits a failed authentication. The attempt window
// is left in place.
func (s *State) RecordAuthFailure(ip string) {
	s.ring.RecordType(audit.EventAuthFailure, ip, "authentication failed")
}

// RetryAfterHeader renders a Decision's retry delay in whole seconds for
// a Retry-After response header, rounding up.
func RetryAfterHeader(d ratelimit.Decision) string {
	secs := int64((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}
