// Package collapse renders a parsed file as signatures-only with selective
// expansion.
//
// Each top-level form becomes one entry: collapsed entries show the
// definition's signature (defining symbol, name, dispatch value and
// parameter vector when present) with "..." marking the elided body;
// expanded entries reproduce the original source slice byte-for-byte,
// including the attached leading comment block. The returned stats let a
// caller judge whether a pattern was too broad or too narrow.
package collapse

import (
	"regexp"
	"strings"

	"sexpedit/internal/locate"
	"sexpedit/internal/sexp"
)

// Stats summarizes one rendering.
type Stats struct {
	TotalForms     int
	ExpandedForms  int
	CollapsedForms int
	PatternMatches int
}

// Render produces the collapsed view of a file. namePat is matched against
// each form's signature string ("name", or "name dispatch" for dispatch
// implementations, so a pattern can target one variant); contentPat is
// matched against the form's full source text. Either may be nil. With no
// patterns, every form renders collapsed.
func Render(src string, root *sexp.Node, namePat, contentPat *regexp.Regexp) (string, Stats) {
	forms := locate.Forms(root)
	var (
		entries []string
		stats   Stats
	)
	for _, top := range topLevel(root) {
		group := formsWithin(forms, top)
		stats.TotalForms++

		expand := false
		for _, f := range group {
			hit := false
			if namePat != nil && f.Name != "" && namePat.MatchString(f.Signature()) {
				hit = true
			}
			if contentPat != nil && contentPat.MatchString(src[top.Start:top.End]) {
				hit = true
			}
			if hit {
				stats.PatternMatches++
				expand = true
			}
		}

		if expand {
			stats.ExpandedForms++
			lead := top.Start
			if len(group) > 0 {
				lead = group[0].LeadStart
			}
			entries = append(entries, strings.TrimRight(src[lead:top.End], " \t"))
			continue
		}
		stats.CollapsedForms++
		entries = append(entries, collapsedEntry(src, top, group))
	}
	if len(entries) == 0 {
		return "", stats
	}
	return strings.Join(entries, "\n\n") + "\n", stats
}

// topLevel returns the root's significant children.
func topLevel(root *sexp.Node) []*sexp.Node {
	return sexp.Significant(root.Children)
}

// formsWithin selects the forms located inside the given top-level node.
// A plain definition contributes one form; a reader conditional contributes
// one per platform branch.
func formsWithin(forms []locate.Form, top *sexp.Node) []locate.Form {
	var out []locate.Form
	for _, f := range forms {
		if f.Node.Start >= top.Start && f.Node.End <= top.End {
			out = append(out, f)
		}
	}
	return out
}

// collapsedEntry renders the signature line for one top-level node.
func collapsedEntry(src string, top *sexp.Node, group []locate.Form) string {
	if top.ReaderConditional() {
		if len(group) == 0 {
			return signatureOf(src, top)
		}
		f := group[0]
		inner := signatureOf(src, f.Node)
		if f.Platform != "" {
			return "#?(" + f.Platform + " " + inner + " ...)"
		}
		return "#?(" + inner + " ...)"
	}
	return signatureOf(src, top)
}

// signatureOf builds "(<def> <name> <dispatch?> <params?> ...)" for list
// forms; anything else renders as its full (typically one-token) text.
func signatureOf(src string, n *sexp.Node) string {
	if n.Kind != sexp.KindList {
		return src[n.Start:n.End]
	}
	sig := sexp.Significant(n.Children)
	if len(sig) == 0 {
		return src[n.Start:n.End]
	}

	parts := []string{sexp.Serialize(sig[0])}
	rest := sig[1:]

	// Name (with any ^meta markers as written).
	for len(rest) >= 2 && rest[0].Kind == sexp.KindAtom && rest[0].Text == "^" {
		parts = append(parts, "^"+sexp.Serialize(rest[1]))
		rest = rest[2:]
	}
	if len(rest) > 0 && rest[0].Kind == sexp.KindAtom {
		parts = append(parts, rest[0].Text)
		rest = rest[1:]
	}

	// defmethod dispatch value sits before the parameter vector.
	if len(rest) > 0 && sig[0].Kind == sexp.KindAtom && sig[0].Text == "defmethod" {
		parts = append(parts, sexp.Serialize(rest[0]))
		rest = rest[1:]
	}

	// Skip a docstring, then include the parameter vector if present.
	if len(rest) > 0 && rest[0].Kind == sexp.KindString {
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0].Kind == sexp.KindVector {
		parts = append(parts, condense(sexp.Serialize(rest[0])))
	}

	return "(" + strings.Join(parts, " ") + " ...)"
}

// condense folds a multi-line parameter vector onto one line.
func condense(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
	})
	return strings.Join(fields, " ")
}
