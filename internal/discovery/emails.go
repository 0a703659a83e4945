package discovery

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Asset filenames match the address pattern (logo@2x.png), so anything
// ending in a static-file extension is discarded.
var junkSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
	".css", ".js", ".ico", ".woff", ".woff2",
}

// extractEmails scans a document for address-shaped strings, in
// document order, without de-duplication.
func extractEmails(body []byte) []string {
	matches := emailPattern.FindAll(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		addr := strings.TrimRight(string(m), ".")
		if isJunkAddress(addr) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func isJunkAddress(addr string) bool {
	lower := strings.ToLower(addr)
	for _, suffix := range junkSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// cleanMailto extracts the bare address from a mailto href, dropping
// any query parameters (subject, body).
func cleanMailto(href string) (string, bool) {
	addr := strings.TrimPrefix(href, "mailto:")
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	addr = strings.TrimSpace(addr)
	if addr == "" || !emailPattern.MatchString(addr) {
		return "", false
	}
	return addr, true
}
