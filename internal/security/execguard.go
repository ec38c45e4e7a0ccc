package security

import (
	"regexp"
	"strings"

	"github.com/thesecretlab-dev/anima-dashboard/internal/audit"
)

// blockedExecPatterns match destructive or exfiltration-prone shell
// idioms. Any match blocks execution before it reaches the sandbox.
var blockedExecPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)mkfs`),
	regexp.MustCompile(`(?i)dd\s+if=.*of=/dev`),
	regexp.MustCompile(`:\(\)\{ :\|:& \};:`), // fork bomb
	regexp.MustCompile(`(?i)chmod\s+777\s+/`),
	regexp.MustCompile(`(?i)curl.*\|\s*(ba)?sh`),
	regexp.MustCompile(`(?i)wget.*\|\s*(ba)?sh`),
	regexp.MustCompile(`(?i)nc\s+-l`),
	regexp.MustCompile(`(?i)ncat\s+-l`),
	regexp.MustCompile(`(?i)python.*-c.*import\s+os`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)base64\s+-d.*\|\s*(ba)?sh`),
}

// IsBlockedCommand reports whether command matches the exec blocklist.
func IsBlockedCommand(command string) bool {
	for _, pattern := range blockedExecPatterns {
		if pattern.MatchString(command) {
			return true
		}
	}
	return false
}

// CheckExecCommand applies the blocklist and audits a hit as
// exec_blocked. Returns false when execution must not proceed.
func (s *State) CheckExecCommand(command, ip string) bool {
	if !IsBlockedCommand(command) {
		return true
	}
	detail := command
	if len(detail) > truncateAt {
		detail = detail[:truncateAt]
	}
	s.ring.RecordType(audit.EventExecBlocked, ip, "blocked command: "+strings.TrimSpace(detail))
	return false
}
