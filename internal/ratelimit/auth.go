// Package ratelimit provides per-IP sliding-window rate limiting for
// authentication endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures auth rate limiting behavior.
type Config struct {
	// Window is the sliding window length.
	Window time.Duration `yaml:"window"`
	// MaxAttempts is the number of attempts allowed per window.
	MaxAttempts int `yaml:"max_attempts"`
	// MaxKeys caps the number of tracked IPs.
	MaxKeys int `yaml:"max_keys"`
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default auth rate limit configuration.
func DefaultConfig() Config {
	return Config{
		Window:      15 * time.Minute,
		MaxAttempts: 10,
		MaxKeys:     10000,
		Enabled:     true,
	}
}

// Decision is the result of a rate limit check.
type Decision struct {
	// Allowed reports whether the attempt may proceed.
	Allowed bool
	// RetryAfter is how long to wait before the window ages out.
	// Zero when Allowed.
	RetryAfter time.Duration
	// FirstBlock is true on the attempt that transitions the entry
	// into the blocked state; callers log exactly once on it.
	FirstBlock bool
}

type windowEntry struct {
	count        int
	firstAttempt time.Time
	blocked      bool
}

// AuthLimiter tracks authentication attempts per IP in a sliding window.
// An attempt counts against the window that started at the IP's first
// attempt; once the window ages out the entry resets. State is pruned
// lazily on access rather than by a background sweep.
//
// AuthLimiter is safe for concurrent use.
type AuthLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	config  Config
	now     func() time.Time
}

// NewAuthLimiter creates an auth limiter from the given configuration.
func NewAuthLimiter(config Config) *AuthLimiter {
	if config.Window <= 0 {
		config.Window = 15 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = 10000
	}
	return &AuthLimiter{
		entries: make(map[string]*windowEntry),
		config:  config,
		now:     time.Now,
	}
}

// Check records an attempt for ip and decides whether it may proceed.
// The first attempt in a window is always allowed.
func (l *AuthLimiter) Check(ip string) Decision {
	if !l.config.Enabled {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	entry, ok := l.entries[ip]
	if !ok || now.Sub(entry.firstAttempt) > l.config.Window {
		if !ok && len(l.entries) >= l.config.MaxKeys {
			// Table full of live windows; fail closed for new IPs.
			return Decision{Allowed: false, RetryAfter: l.config.Window, FirstBlock: true}
		}
		l.entries[ip] = &windowEntry{count: 1, firstAttempt: now}
		return Decision{Allowed: true}
	}

	entry.count++
	if entry.count > l.config.MaxAttempts {
		firstBlock := !entry.blocked
		entry.blocked = true
		retryAfter := l.config.Window - now.Sub(entry.firstAttempt)
		return Decision{Allowed: false, RetryAfter: retryAfter, FirstBlock: firstBlock}
	}

	return Decision{Allowed: true}
}

// Success clears the window for ip entirely.
func (l *AuthLimiter) Success(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ip)
}

// Tracked returns the number of IPs currently tracked.
func (l *AuthLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// pruneLocked drops entries whose window has aged out. Must be called
// with the lock held.
func (l *AuthLimiter) pruneLocked(now time.Time) {
	for ip, entry := range l.entries {
		if now.Sub(entry.firstAttempt) > l.config.Window {
			delete(l.entries, ip)
		}
	}
}
