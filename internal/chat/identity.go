package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// DisplayMessage is a history message with a stable local identity.
// The identity is derived from content, not list position, so it
// survives refreshes that prepend or append messages.
type DisplayMessage struct {
	ID string
	models.Message
}

// messageIdentity hashes the parts of a message that do not change
// across history fetches: role, first text block, timestamp.
func messageIdentity(msg models.Message) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%d", msg.Role, msg.FirstText(), msg.Timestamp))
	return hex.EncodeToString(sum[:8])
}

// buildDisplayMessages sanitizes inbound text and assigns identities.
// Duplicate logical messages within one fetch get an occurrence suffix
// so identities stay unique while remaining stable across fetches.
func buildDisplayMessages(messages []models.Message) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(messages))
	seen := make(map[string]int, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleUser {
			for i, block := range msg.Content {
				if block.Type == "text" {
					msg.Content = append([]models.ContentBlock(nil), msg.Content...)
					msg.Content[i].Text = SanitizeInbound(block.Text)
					break
				}
			}
		}
		id := messageIdentity(msg)
		if n := seen[id]; n > 0 {
			id = fmt.Sprintf("%s#%d", id, n)
		}
		seen[messageIdentity(msg)]++
		out = append(out, DisplayMessage{ID: id, Message: msg})
	}
	return out
}
