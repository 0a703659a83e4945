package batch

import "strings"

// defaultScheme is prepended to addresses missing an explicit scheme.
const defaultScheme = "https://"

// NormalizeAddress trims the raw cell value and defaults the scheme.
// The second return is false when the cell is empty or whitespace-only,
// in which case the row is skipped without any network call. No further
// validation happens here; malformed addresses are left to the
// discovery collaborator, which reports its own failure.
func NormalizeAddress(raw string) (string, bool) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", false
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = defaultScheme + addr
	}
	return addr, true
}
