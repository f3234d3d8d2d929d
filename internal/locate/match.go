// Sub-expression matching by structural equality.
//
// FindAll locates every occurrence of a fragment anywhere in the tree by
// structural equality, so a fragment written on one line matches the same
// expression spread across several. A fragment with multiple sibling
// expressions matches only a contiguous run of siblings in the same order.
package locate

import (
	"fmt"

	"sexpedit/internal/sexp"
)

// Occurrence identifies a contiguous run of sibling nodes inside Parent.
// From/To are inclusive indexes into Parent.Children (real indexes, so the
// run may span interleaved whitespace/comment nodes); Start/End are the byte
// span of the run in the original text.
type Occurrence struct {
	Parent *sexp.Node
	From   int
	To     int
	Start  int
	End    int
}

// Overlaps reports whether two occurrences share any bytes. Nested matches
// (one inside the other's subtree) overlap by this definition.
func (o Occurrence) Overlaps(other Occurrence) bool {
	return o.Start < other.End && other.Start < o.End
}

// ParseFragment parses fragment text and requires at least one complete
// expression. Reader errors (including delimiter imbalance) pass through
// unchanged so callers can route them to repair.
func ParseFragment(fragment string) ([]*sexp.Node, error) {
	root, err := sexp.Parse(fragment)
	if err != nil {
		return nil, err
	}
	sig := sexp.Significant(root.Children)
	if len(sig) == 0 {
		return nil, fmt.Errorf("fragment contains no expressions")
	}
	return sig, nil
}

// FindAll returns every occurrence of the fragment in the tree, in
// depth-first source order. The fragment must parse as one or more complete
// expressions.
func FindAll(root *sexp.Node, fragment string) ([]Occurrence, error) {
	want, err := ParseFragment(fragment)
	if err != nil {
		return nil, err
	}
	var out []Occurrence
	var walk func(n *sexp.Node)
	walk = func(n *sexp.Node) {
		out = append(out, matchRuns(n, want)...)
		for _, c := range n.Children {
			if c.Composite() {
				walk(c)
			}
		}
	}
	walk(root)
	return out, nil
}

// matchRuns finds runs of parent's significant children equal to want.
func matchRuns(parent *sexp.Node, want []*sexp.Node) []Occurrence {
	// Map significant position -> real child index.
	var sigIdx []int
	for i, c := range parent.Children {
		if !c.Inert() {
			sigIdx = append(sigIdx, i)
		}
	}
	if len(sigIdx) < len(want) {
		return nil
	}
	var out []Occurrence
	for s := 0; s+len(want) <= len(sigIdx); s++ {
		ok := true
		for k := range want {
			if !sexp.Equal(parent.Children[sigIdx[s+k]], want[k]) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		from := sigIdx[s]
		to := sigIdx[s+len(want)-1]
		out = append(out, Occurrence{
			Parent: parent,
			From:   from,
			To:     to,
			Start:  parent.Children[from].Start,
			End:    parent.Children[to].End,
		})
	}
	return out
}
