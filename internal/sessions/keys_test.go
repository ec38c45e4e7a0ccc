package sessions

import "testing"

func TestCanonicalKey(t *testing.T) {
	if got := CanonicalKey("main", "main"); got != "agent:main:main" {
		t.Errorf("CanonicalKey = %q, want agent:main:main", got)
	}
}

func TestDisplayKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"agent:main:main", "main"},
		{"agent:ops:standup", "standup"},
		{"main", "main"},
		{"agent:dangling", "agent:dangling"},
	}
	for _, tt := range tests {
		if got := DisplayKey(tt.key); got != tt.want {
			t.Errorf("DisplayKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestIsCanonical(t *testing.T) {
	if !IsCanonical("agent:main:main") {
		t.Error("agent:main:main should be canonical")
	}
	if IsCanonical("main") {
		t.Error("main should not be canonical")
	}
	if IsCanonical("agent:dangling") {
		t.Error("agent:dangling should not be canonical")
	}
}

func TestKeysEquivalent(t *testing.T) {
	tests := []struct {
		eventKey string
		want     bool
	}{
		{"main", true},
		{"agent:main:main", true},
		{"other", false},
		{"agent:main:other", false},
		{"agent:ops:main", false},
	}
	for _, tt := range tests {
		if got := KeysEquivalent(tt.eventKey, "main", "main"); got != tt.want {
			t.Errorf("KeysEquivalent(%q, main, main) = %v, want %v", tt.eventKey, got, tt.want)
		}
	}
}
