package chat

import "strings"

const metadataIntro = "Conversation info (untrusted metadata):"

// SanitizeInbound strips a leading operator-injected metadata block
// from a message: an introducing line followed by a fenced code block.
// The block is context for the agent, not user text, and must never
// reach the rendered transcript. Text without the block is returned
// unchanged apart from whitespace trimming of the stripped form.
func SanitizeInbound(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, metadataIntro) {
		return text
	}

	rest := strings.TrimSpace(trimmed[len(metadataIntro):])
	if !strings.HasPrefix(rest, "```") {
		return text
	}

	// Skip the opening fence line (may carry a language tag).
	newline := strings.IndexByte(rest, '\n')
	if newline < 0 {
		return text
	}
	body := rest[newline+1:]

	closing := strings.Index(body, "```")
	if closing < 0 {
		return text
	}
	after := body[closing+len("```"):]
	return strings.TrimSpace(after)
}
