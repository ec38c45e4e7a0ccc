package audit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries bounds the in-memory trail; the oldest entries are
// evicted once the bound is reached.
const DefaultMaxEntries = 10_000

// Ring is an append-only, bounded audit trail. Entries live only in
// process memory; every entry is also mirrored to a structured logger so
// a durable copy exists outside the ring.
//
// Ring is safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	entries  []Event
	start    int // index of the oldest entry
	count    int
	max      int
	logger   *slog.Logger
	observer func(Event)
}

// NewRing creates an audit ring holding at most maxEntries events.
// If maxEntries <= 0, DefaultMaxEntries is used. If logger is nil,
// slog.Default() is used for the mirror stream.
func NewRing(maxEntries int, logger *slog.Logger) *Ring {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ring{
		entries: make([]Event, maxEntries),
		max:     maxEntries,
		logger:  logger.With("component", "audit"),
	}
}

// SetObserver installs a callback invoked for every recorded event,
// after the entry is stored. Observers must not call back into the
// ring. Pass nil to remove.
func (r *Ring) SetObserver(fn func(Event)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// Record appends an event, evicting the oldest entry when full, and
// mirrors it to the side-channel logger.
func (r *Ring) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	r.mu.Lock()
	if r.count < r.max {
		r.entries[(r.start+r.count)%r.max] = event
		r.count++
	} else {
		r.entries[r.start] = event
		r.start = (r.start + 1) % r.max
	}
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer(event)
	}

	r.logger.Warn("security event",
		"event_type", string(event.Type),
		"ip", event.IP,
		"details", event.Details,
	)
}

// RecordType is shorthand for Record with the common fields.
func (r *Ring) RecordType(eventType EventType, ip, details string) {
	r.Record(Event{Type: eventType, IP: ip, Details: details})
}

// Recent returns up to limit of the most recent entries, oldest first.
// limit <= 0 returns the default page of 100.
func (r *Ring) Recent(limit int) []Event {
	if limit <= 0 {
		limit = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%r.max])
	}
	return out
}

// Len returns the number of entries currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
