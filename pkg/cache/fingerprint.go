package cache

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the normalized form of raw SQL. Queries that differ
// only in whitespace, comments, or keyword/identifier casing fingerprint
// identically; string literals are significant.
func Fingerprint(raw string) uint64 {
	return xxhash.Sum64String(Normalize(raw))
}

// Normalize collapses whitespace runs to single spaces, drops comments, and
// lowercases everything outside single-quoted string literals.
func Normalize(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))

	i := 0
	n := len(raw)
	pendingSpace := false
	writeByte := func(c byte) {
		if pendingSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false
		sb.WriteByte(c)
	}

	for i < n {
		c := raw[i]
		switch {
		case c == '\'':
			// String literal kept verbatim, including doubled-quote escapes.
			start := i
			i++
			for i < n {
				if raw[i] == '\'' {
					if i+1 < n && raw[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			pendingSpace = false
			sb.WriteString(raw[start:i])
		case c == '-' && i+1 < n && raw[i+1] == '-':
			for i < n && raw[i] != '\n' {
				i++
			}
			pendingSpace = true
		case c == '/' && i+1 < n && raw[i+1] == '*':
			i += 2
			for i+1 < n && !(raw[i] == '*' && raw[i+1] == '/') {
				i++
			}
			i += 2
			if i > n {
				i = n
			}
			pendingSpace = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			pendingSpace = true
			i++
		default:
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			writeByte(c)
			i++
		}
	}
	return sb.String()
}
