// Package fingerprint computes position-independent digests of excerpt text.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize folds the differences editors introduce without changing the
// text: CRLF line endings, trailing whitespace on a line and trailing
// blank lines.
func Normalize(lines []string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimRight(strings.TrimSuffix(l, "\r"), " \t")
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// Lines fingerprints a window of lines.
func Lines(lines []string) string {
	return sum(Normalize(lines))
}

// String fingerprints free text by splitting it into lines first, so that
// String(strings.Join(l, "\n")) == Lines(l).
func String(s string) string {
	return Lines(SplitLines(s))
}

// SplitLines splits s on '\n', accepting CRLF, and drops the empty element
// a trailing newline would produce.
func SplitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Bytes returns the hex SHA-256 of raw data, used for whole-file checks.
func Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func sum(s string) string {
	return Bytes([]byte(s))
}
