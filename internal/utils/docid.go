package utils

import "strings"

// MaxDocIDLength bounds booking ids to the width of the bookings.id column
const MaxDocIDLength = 128

// reservedPrefix is prepended to ids shaped like reserved names (__name__)
const reservedPrefix = "id"

// SanitizeDocID maps an arbitrary identifier to a legal booking key.
//
// Surrounding whitespace is trimmed, every byte outside [A-Za-z0-9_-] becomes '_',
// the result is capped at MaxDocIDLength bytes, and ids of the form __x__ get a prefix.
// Empty input stays empty so callers can treat it as "no candidate".
// SanitizeDocID(SanitizeDocID(x)) == SanitizeDocID(x) for every x.
func SanitizeDocID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if isDocIDByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}

	out := truncate(b.String(), MaxDocIDLength)
	if isReservedDocID(out) {
		out = truncate(reservedPrefix+out, MaxDocIDLength)
	}
	return out
}

func isDocIDByte(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-'
}

func isReservedDocID(id string) bool {
	return len(id) >= 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__")
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
