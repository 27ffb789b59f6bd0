// Package detector recognises anti-scraping pages served with a success
// status.
package detector

import (
	"bytes"
	"strings"
)

// DefaultScriptThreshold is the body size below which a script-dominated page
// counts as a challenge.
const DefaultScriptThreshold = 2048

// Challenge implements a handful of rule-based block checks.
type Challenge struct {
	markers         [][]byte
	ScriptThreshold int
}

// NewChallenge creates a detector matching markers case-insensitively.
func NewChallenge(markers []string, threshold int) *Challenge {
	if threshold == 0 {
		threshold = DefaultScriptThreshold
	}
	c := &Challenge{ScriptThreshold: threshold}
	for _, m := range markers {
		m = strings.TrimSpace(strings.ToLower(m))
		if m != "" {
			c.markers = append(c.markers, []byte(m))
		}
	}
	return c
}

// Detect reports whether body looks like a challenge, rate-limit or block
// page, and why.
func (c *Challenge) Detect(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	lower := bytes.ToLower(body)
	for _, marker := range c.markers {
		if bytes.Contains(lower, marker) {
			return "marker " + string(marker), true
		}
	}
	if c.ScriptThreshold > 0 && len(body) < c.ScriptThreshold && scriptDensityHigh(lower) {
		return "script challenge", true
	}
	return "", false
}

// scriptDensityHigh expects an already lowercased body.
func scriptDensityHigh(body []byte) bool {
	lower := string(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
