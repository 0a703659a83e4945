package batch

import (
	"regexp"
	"strings"
)

// DefaultSampleRows is how many leading rows the detector inspects.
const DefaultSampleRows = 5

// urlPattern matches values that look like web addresses: an explicit
// scheme, a www. prefix, or a bare hostname with a plausible TLD.
var urlPattern = regexp.MustCompile(`(?i)https?://\S+|www\.\S+|\b[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,}\b`)

// DetectURLColumn scans a sample of the batch and returns the column
// most likely to hold web addresses. The heuristic is best-effort, not
// exact: the column with the strictly highest match count wins, ties
// break toward the first-declared column, and a column with zero
// matches is never selected. ErrNoURLColumn is returned when every
// column scores zero.
func DetectURLColumn(columns []string, rows []Row, sampleRows int) (string, error) {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	if len(rows) > sampleRows {
		rows = rows[:sampleRows]
	}

	best := ""
	bestCount := 0
	for _, col := range columns {
		count := 0
		for _, row := range rows {
			value := strings.TrimSpace(row[col])
			if value == "" {
				continue
			}
			if looksLikeAddress(value) {
				count++
			}
		}
		if count > bestCount {
			best = col
			bestCount = count
		}
	}
	if bestCount == 0 {
		return "", ErrNoURLColumn
	}
	return best, nil
}

func looksLikeAddress(value string) bool {
	if !urlPattern.MatchString(value) {
		return false
	}
	if strings.Contains(value, "http://") || strings.Contains(value, "https://") {
		return true
	}
	// Bare hostnames need at least one dot separating two tokens.
	return strings.Count(value, ".") >= 1
}
