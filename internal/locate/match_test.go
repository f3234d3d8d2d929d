package locate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sexpedit/internal/sexp"
)

func parseTree(t *testing.T, src string) *sexp.Node {
	t.Helper()
	root, err := sexp.Parse(src)
	require.NoError(t, err)
	return root
}

func spans(occs []Occurrence) [][2]int {
	out := make([][2]int, 0, len(occs))
	for _, o := range occs {
		out = append(out, [2]int{o.Start, o.End})
	}
	return out
}

func TestFindAllStructuralMatch(t *testing.T) {
	src := "(defn f [x]\n  (+ x 2))\n\n(defn g [x]\n  (* 3 (+ x\n        2)))\n"
	root := parseTree(t, src)

	occs, err := FindAll(root, "(+ x 2)")
	require.NoError(t, err)
	require.Len(t, occs, 2, "multi-line spelling must match the one-line fragment")
}

func TestFindAllWhitespaceInvariance(t *testing.T) {
	src := "(do (+ x 2) (+ x 2))"
	root := parseTree(t, src)

	a, err := FindAll(root, "(+ x 2)")
	require.NoError(t, err)
	b, err := FindAll(root, "(+  x\n   2)")
	require.NoError(t, err)

	if diff := cmp.Diff(spans(a), spans(b)); diff != "" {
		t.Fatalf("fragments differing only in whitespace located different occurrences:\n%s", diff)
	}
	assert.Len(t, a, 2)
}

func TestFindAllSiblingRun(t *testing.T) {
	src := "(do (a) (b) (c) (a) (b))"
	root := parseTree(t, src)

	occs, err := FindAll(root, "(a) (b)")
	require.NoError(t, err)
	require.Len(t, occs, 2)

	// A run must be contiguous: (a) ... (c) in between does not match.
	occs, err = FindAll(root, "(a) (c)")
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestFindAllNestedOccurrencesOverlap(t *testing.T) {
	src := "(f (g (f (g x))))"
	root := parseTree(t, src)

	occs, err := FindAll(root, "(g x)")
	require.NoError(t, err)
	require.Len(t, occs, 1)

	outer, err := FindAll(root, "(f (g x))")
	require.NoError(t, err)
	require.Len(t, outer, 1)

	all, err := FindAll(root, "(g (f (g x)))")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Overlaps(outer[0]), "nested matches must report as overlapping")
}

func TestFindAllRejectsBadFragments(t *testing.T) {
	root := parseTree(t, "(a b c)")

	_, err := FindAll(root, "(+ x")
	var de *sexp.DelimiterError
	require.True(t, errors.As(err, &de), "unbalanced fragment must surface the delimiter error, got %v", err)

	_, err = FindAll(root, "   ;; just a comment\n")
	assert.Error(t, err, "fragment with no expressions must be rejected")
}

func TestFindAllDelimiterTypeMatters(t *testing.T) {
	root := parseTree(t, "(do [a b] (a b))")

	occs, err := FindAll(root, "[a b]")
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, sexp.KindVector, occs[0].Parent.Children[occs[0].From].Kind)
}
