package pattern

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseClusterSize reads the leading integer of raw, the way a form field is
// read: leading whitespace and a sign are allowed and anything after the
// digits is ignored, so "7 cells" is 7 and "1/7" is 1. numeric is false when
// no digits lead the input.
func ParseClusterSize(raw string) (n int, numeric bool) {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Out of int range; no such cluster could be tiled anyway.
		return 0, false
	}
	return n, true
}
