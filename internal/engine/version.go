package engine

import (
	"strconv"
	"strings"
)

// BumpVersion increments an attachment version for a new revision round.
//
//	""    -> "A"
//	"B"   -> "C"   (last letter advances by one code point)
//	"Z"   -> "["   (no rollover to "AA")
//	"9"   -> "10"  (fully numeric versions count up)
//	"A9"  -> "A9"  (anything else is left unchanged)
func BumpVersion(version string) string {
	text := strings.TrimSpace(version)
	if text == "" {
		return "A"
	}
	last := text[len(text)-1]
	switch {
	case last >= 'a' && last <= 'z', last >= 'A' && last <= 'Z':
		return text[:len(text)-1] + string(rune(last+1))
	case last >= '0' && last <= '9':
		if n, err := strconv.ParseFloat(text, 64); err == nil {
			return strconv.FormatFloat(n+1, 'f', -1, 64)
		}
	}
	return text
}
