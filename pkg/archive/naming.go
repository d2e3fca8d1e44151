package archive

import (
	"fmt"
	"strings"
)

// isPortableName reports whether name consists only of characters from the
// POSIX portable filename character set (letters, digits, '.', '_', '-')
// and is non-empty (spec.md §4.4.2).
func isPortableName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}

	return true
}

// sanitizeName rewrites every character outside the POSIX portable set to
// '_'.
func sanitizeName(name string) string {
	var b strings.Builder

	b.Grow(len(name))

	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	if b.Len() == 0 {
		return "_"
	}

	return b.String()
}

// validateName applies the configured [NamePolicy] to name, returning the
// (possibly rewritten) name to use, or [ErrInvalidName].
func validateName(name string, policy NamePolicy) (string, error) {
	if isPortableName(name) {
		return name, nil
	}

	if policy == NamePolicySanitize {
		return sanitizeName(name), nil
	}

	return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
}

// suffixSequence returns the Nth collision suffix in the sequence
// a..z, aa..zz, aaa..zzz, ... (spec.md §4.4.2), 0-indexed.
func suffixSequence(n int) string {
	const alphabetSize = 26

	length := 1
	base := alphabetSize

	for n >= base {
		n -= base
		length++
		base *= alphabetSize
	}

	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte('a' + n%alphabetSize)
		n /= alphabetSize
	}

	return string(buf)
}

// partitionName builds the physical name of partition k (1-indexed) of
// logical file base, with an optional collision suffix.
func partitionName(base, suffix string, k int) string {
	if suffix == "" {
		return fmt.Sprintf("%s.part%d", base, k)
	}

	return fmt.Sprintf("%s.%s.part%d", base, suffix, k)
}
