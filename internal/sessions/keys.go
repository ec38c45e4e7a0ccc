// Package sessions provides session key scoping and the gateway-side
// session store. Durable persistence is a collaborator concern; the
// store here is in-memory and keyed by canonical session key.
package sessions

import "strings"

// CanonicalPrefix scopes gateway-assigned session keys.
const CanonicalPrefix = "agent"

// CanonicalKey builds the gateway-assigned stable key for a conversation:
// agent:<scope>:<displayKey>. The display key is the human-chosen name
// ("main"); the canonical key survives display-key reuse across scopes.
func CanonicalKey(scope, displayKey string) string {
	return CanonicalPrefix + ":" + scope + ":" + displayKey
}

// DisplayKey extracts the display key from a canonical key. A key that
// is not canonical is returned unchanged.
func DisplayKey(key string) string {
	rest, ok := strings.CutPrefix(key, CanonicalPrefix+":")
	if !ok {
		return key
	}
	_, display, ok := strings.Cut(rest, ":")
	if !ok {
		return key
	}
	return display
}

// IsCanonical reports whether key is a gateway-assigned canonical key.
func IsCanonical(key string) bool {
	if rest, ok := strings.CutPrefix(key, CanonicalPrefix+":"); ok {
		return strings.Contains(rest, ":")
	}
	return false
}

// KeysEquivalent reports whether an event's session key addresses the
// session identified by displayKey under scope. Events may be tagged
// with either the literal display key or the canonical key; both
// resolve to the same session.
func KeysEquivalent(eventKey, scope, displayKey string) bool {
	if eventKey == displayKey {
		return true
	}
	return eventKey == CanonicalKey(scope, displayKey)
}
