package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tikcccc/Form-demo/internal/ir"
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// TransmittalPrefix derives the numbering prefix of a template from its
// code, name or id: upper-cased, with runs of other characters collapsed to
// a dash. Templates with nothing usable fall back to "DOC".
func TransmittalPrefix(t *ir.Template) string {
	raw := t.Code
	if raw == "" {
		raw = t.Name
	}
	if raw == "" {
		raw = t.ID
	}
	prefix := strings.Trim(nonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "-"), "-")
	if prefix == "" {
		return "DOC"
	}
	return prefix
}

// NextTransmittalNo returns PREFIX-YEAR-NNNN where NNNN is one more than the
// highest counter among existing numbers with the same prefix and year.
func NextTransmittalNo(prefix string, year int, existing []string) string {
	matcher := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-` + strconv.Itoa(year) + `-(\d{4})$`)
	highest := 0
	for _, no := range existing {
		if m := matcher.FindStringSubmatch(no); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > highest {
				highest = n
			}
		}
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, highest+1)
}
