// Package textutil holds small text-normalization helpers for caller-supplied
// replacement fragments. File content itself is never normalized: the engine
// must keep untouched bytes byte-identical.
package textutil

import "strings"

// NormalizeFragment converts CRLF/CR line endings to LF and replaces invalid
// UTF-8 sequences with the Unicode replacement character. Applied only to
// incoming fragments, before validation.
func NormalizeFragment(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ToValidUTF8(s, "�")
}

// TrimBlankEdges removes leading and trailing blank lines from a fragment
// while keeping its internal layout intact.
func TrimBlankEdges(s string) string {
	return strings.Trim(s, "\n")
}
