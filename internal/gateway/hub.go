// Package gateway serves the socket control plane: authenticated
// upgrades, request dispatch, and the per-connection ordered event
// feed with gap signaling.
package gateway

import (
	"log/slog"
	"sync"

	"github.com/thesecretlab-dev/anima-dashboard/internal/observability"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// Hub fans feed events out to every subscribed connection. Each
// subscriber has a bounded queue; when a slow consumer overflows it,
// events are dropped and the subscription is marked gapped so the
// writer emits a seq_gap marker before the next delivered event.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	buffer  int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHub creates a hub with the given per-subscriber queue depth.
func NewHub(buffer int, metrics *observability.Metrics, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: metrics,
		logger:  logger.With("component", "hub"),
	}
}

// Subscription is one connection's view of the feed.
type Subscription struct {
	hub    *Hub
	events chan models.TransportEvent

	mu     sync.Mutex
	gapped bool
}

// Subscribe registers a new subscriber starting from "now".
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{hub: h, events: make(chan models.TransportEvent, h.buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Publish delivers an event to every subscriber without blocking.
func (h *Hub) Publish(ev models.TransportEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.events <- ev:
		default:
			sub.markGap()
		}
	}
	if h.metrics != nil {
		h.metrics.EventsEmitted.WithLabelValues(string(ev.Type)).Inc()
	}
}

// Events is the subscriber's delivery queue.
func (s *Subscription) Events() <-chan models.TransportEvent {
	return s.events
}

func (s *Subscription) markGap() {
	s.mu.Lock()
	if !s.gapped {
		s.gapped = true
		s.hub.logger.Warn("subscriber queue overflow, marking feed gap")
		if s.hub.metrics != nil {
			s.hub.metrics.SeqGaps.Inc()
		}
	}
	s.mu.Unlock()
}

// TakeGap reports and clears the gap flag. The writer calls it before
// each delivery: a true result means events were dropped since the last
// delivered one, and a seq_gap marker must precede the next event.
func (s *Subscription) TakeGap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	gapped := s.gapped
	s.gapped = false
	return gapped
}

// Close removes the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}
