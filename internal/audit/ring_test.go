package audit

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func newTestRing(max int) *Ring {
	return NewRing(max, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRing_RecordAndRecent(t *testing.T) {
	ring := newTestRing(10)

	ring.RecordType(EventAuthFailure, "10.0.0.1", "bad token")
	ring.RecordType(EventAuthSuccess, "10.0.0.1", "ok")

	events := ring.Recent(100)
	if len(events) != 2 {
		t.Fatalf("Recent() returned %d events, want 2", len(events))
	}
	if events[0].Type != EventAuthFailure || events[1].Type != EventAuthSuccess {
		t.Errorf("events out of order: %v, %v", events[0].Type, events[1].Type)
	}
	for _, ev := range events {
		if ev.ID == "" {
			t.Error("event ID not assigned")
		}
		if ev.Timestamp.IsZero() {
			t.Error("event timestamp not assigned")
		}
	}
}

func TestRing_ObserverSeesEveryRecord(t *testing.T) {
	ring := newTestRing(10)

	var mu sync.Mutex
	var seen []EventType
	ring.SetObserver(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	})

	ring.RecordType(EventAuthFailure, "10.0.0.1", "bad token")
	ring.RecordType(EventPathTraversalAttempt, "10.0.0.1", "../etc")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("observer called %d times, want 2", len(seen))
	}
	if seen[0] != EventAuthFailure || seen[1] != EventPathTraversalAttempt {
		t.Errorf("observer saw %v", seen)
	}

	ring.SetObserver(nil)
	ring.RecordType(EventAuthSuccess, "10.0.0.1", "ok")
	if len(seen) != 2 {
		t.Errorf("removed observer still called, saw %v", seen)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	ring := newTestRing(3)

	for i := 0; i < 5; i++ {
		ring.RecordType(EventSuspiciousRequest, "10.0.0.2", fmt.Sprintf("probe %d", i))
	}

	if ring.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ring.Len())
	}
	events := ring.Recent(10)
	if len(events) != 3 {
		t.Fatalf("Recent() returned %d events, want 3", len(events))
	}
	if events[0].Details != "probe 2" || events[2].Details != "probe 4" {
		t.Errorf("unexpected window: first=%q last=%q", events[0].Details, events[2].Details)
	}
}

func TestRing_RecentLimit(t *testing.T) {
	ring := newTestRing(10)
	for i := 0; i < 6; i++ {
		ring.RecordType(EventRateLimited, "10.0.0.3", fmt.Sprintf("attempt %d", i))
	}

	events := ring.Recent(2)
	if len(events) != 2 {
		t.Fatalf("Recent(2) returned %d events, want 2", len(events))
	}
	if events[1].Details != "attempt 5" {
		t.Errorf("last entry = %q, want attempt 5", events[1].Details)
	}
}

func TestRing_ConcurrentRecord(t *testing.T) {
	ring := newTestRing(100)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ring.RecordType(EventExecBlocked, "10.0.0.4", "cmd")
			}
		}()
	}
	wg.Wait()

	if ring.Len() != 100 {
		t.Errorf("Len() = %d, want 100 (bounded)", ring.Len())
	}
}
