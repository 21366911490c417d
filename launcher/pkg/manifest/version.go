package manifest

import (
	"strconv"
	"strings"
)

// CompareVersions orders two version strings loosely: segments are split on
// '.' and '-', numeric segments compare numerically, everything else compares
// case-insensitively. This is intentionally not strict semver since published
// content uses versions like "1.04", "v2", or "2020-final".
// Returns -1, 0, or 1.
func CompareVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aNum := parseSegment(as[i])
		bn, bNum := parseSegment(bs[i])
		switch {
		case aNum && bNum:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		case aNum != bNum:
			// Numeric segments order after plain text ("1.2" > "1.rc").
			if aNum {
				return 1
			}
			return -1
		default:
			if c := strings.Compare(strings.ToLower(as[i]), strings.ToLower(bs[i])); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func splitVersion(v string) []string {
	v = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(v), "v"))
	return strings.FieldsFunc(v, func(r rune) bool { return r == '.' || r == '-' })
}

func parseSegment(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
