package chat

import (
	"sort"
	"time"

	"github.com/thesecretlab-dev/anima-dashboard/internal/sessions"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// RecencyWindow bounds which non-main sessions appear in the picker.
const RecencyWindow = 24 * time.Hour

// SessionChoices orders session display keys for a session picker:
// "main" first when listed or current, then sessions updated within the recency
// window sorted by updatedAt descending, then the current session
// appended if nothing above included it. Stale non-current sessions
// are omitted. Ties on updatedAt keep list order.
func SessionChoices(current string, entries []models.SessionEntry, now time.Time) []string {
	cutoff := now.Add(-RecencyWindow).UnixMilli()

	currentKey := sessions.DisplayKey(current)
	hasMain := currentKey == "main"
	recent := make([]models.SessionEntry, 0, len(entries))
	for _, entry := range entries {
		key := sessions.DisplayKey(entry.Key)
		if key == "main" {
			hasMain = true
			continue
		}
		if entry.UpdatedAt >= cutoff {
			recent = append(recent, entry)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].UpdatedAt > recent[j].UpdatedAt
	})

	choices := make([]string, 0, len(recent)+2)
	if hasMain {
		choices = append(choices, "main")
	}
	for _, entry := range recent {
		choices = append(choices, sessions.DisplayKey(entry.Key))
	}

	if currentKey != "" {
		found := false
		for _, key := range choices {
			if key == currentKey {
				found = true
				break
			}
		}
		if !found {
			choices = append(choices, currentKey)
		}
	}
	return choices
}
