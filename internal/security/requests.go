package security

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/thesecretlab-dev/anima-dashboard/internal/audit"
)

// truncateAt bounds audited path snippets.
const truncateAt = 200

// DetectPathTraversal URL-decodes the request URI, query string
// included, and flags traversal attempts: parent references, doubled
// slashes, backslashes, NUL encodings, and double/percent-encoded
// traversal sequences. A hit is audited; the caller returns 400.
func (s *State) DetectPathTraversal(rawURI, ip string) bool {
	decoded, err := url.PathUnescape(rawURI)
	if err != nil {
		// Undecodable URIs are treated as hostile.
		decoded = rawURI
	}
	lower := strings.ToLower(decoded)

	suspicious := strings.Contains(decoded, "..") ||
		strings.Contains(decoded, "//") ||
		strings.Contains(decoded, `\`) ||
		strings.Contains(lower, "%00") ||
		strings.Contains(lower, "%2e%2e") ||
		strings.Contains(lower, "%252e")

	if suspicious {
		s.ring.RecordType(audit.EventPathTraversalAttempt, ip, "suspicious path: "+truncate(rawURI))
	}
	return suspicious
}

// suspiciousURLPatterns match common scanner and exploit probes:
// credential files, admin panels, version-control directories, shell
// markers and interpreter endpoints.
var suspiciousURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.env`),
	regexp.MustCompile(`(?i)wp-admin`),
	regexp.MustCompile(`(?i)wp-login`),
	regexp.MustCompile(`(?i)phpmyadmin`),
	regexp.MustCompile(`(?i)\.git/`),
	regexp.MustCompile(`(?i)\.svn/`),
	regexp.MustCompile(`(?i)actuator`),
	regexp.MustCompile(`(?i)\.asp`),
	regexp.MustCompile(`(?i)\.php`),
	regexp.MustCompile(`(?i)shell`),
	regexp.MustCompile(`(?i)cmd\.exe`),
	regexp.MustCompile(`(?i)passwd`),
	regexp.MustCompile(`(?i)shadow`),
	regexp.MustCompile(`(?i)etc/passwd`),
	regexp.MustCompile(`(?i)proc/self`),
}

// DetectSuspiciousRequest checks the request URL against the scanner
// pattern list. A hit is audited but not blocking: the caller lets the
// request fail naturally (typically 404) so the hardening layer is not
// fingerprintable.
func (s *State) DetectSuspiciousRequest(rawURL, ip string) bool {
	for _, pattern := range suspiciousURLPatterns {
		if pattern.MatchString(rawURL) {
			s.ring.RecordType(audit.EventSuspiciousRequest, ip, "suspicious url pattern: "+truncate(rawURL))
			return true
		}
	}
	return false
}

func truncate(s string) string {
	if len(s) > truncateAt {
		return s[:truncateAt]
	}
	return s
}
