package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sexpedit/internal/config"
	"sexpedit/internal/guard"
	"sexpedit/internal/locate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine() *Engine {
	return New(config.Default())
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "core.clj")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// observe performs the full read an editor session would do before editing.
func observe(t *testing.T, e *Engine, path string) {
	t.Helper()
	e.Guard().ObserveRead(path, true)
}

const editSrc = `(ns app.core)

;; doubles the increment
(defn inc-twice [x]
  (+ x 2))

(def limit 10)
`

func TestReplaceFormKeepsSurroundingBytes(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()
	observe(t, e, path)

	frag := "(defn inc-twice [x]\n  (inc (inc x)))"
	res, err := e.ReplaceForm(path, locate.Selector{Name: "inc-twice"}, frag)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.ID)
	assert.Empty(t, res.Warnings)

	oldForm := "(defn inc-twice [x]\n  (+ x 2))"
	i := strings.Index(editSrc, oldForm)
	require.GreaterOrEqual(t, i, 0)
	want := editSrc[:i] + frag + editSrc[i+len(oldForm):]
	assert.Equal(t, want, res.NewText)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(onDisk))

	assert.Contains(t, res.Diff, "-  (+ x 2))")
	assert.Contains(t, res.Diff, "+  (inc (inc x)))")
}

func TestReplaceFormNoMatchListsCandidates(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()
	observe(t, e, path)

	_, err := e.ReplaceForm(path, locate.Selector{Name: "absent"}, "(def absent 1)")
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
	assert.Contains(t, nm.Candidates, "inc-twice")
	assert.Contains(t, nm.Candidates, "limit")

	onDisk, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, editSrc, string(onDisk), "failed edit must not touch the file")
}

func TestReplaceFormAmbiguousSelector(t *testing.T) {
	src := "(defmethod area :circle [s] 1)\n\n(defmethod area :square [s] 2)\n"
	path := writeSource(t, src)
	e := newEngine()
	observe(t, e, path)

	_, err := e.ReplaceForm(path, locate.Selector{Name: "area"}, "(defmethod area :circle [s] 3)")
	var am *AmbiguousMatchError
	require.ErrorAs(t, err, &am)
	require.Len(t, am.Candidates, 2)
	assert.Contains(t, am.Candidates[0], "line 1")
	assert.Contains(t, am.Candidates[1], "line 3")

	// Adding the dispatch value disambiguates.
	res, err := e.ReplaceForm(path,
		locate.Selector{Name: "area", Dispatch: ":circle"},
		"(defmethod area :circle [s] 3)")
	require.NoError(t, err)
	assert.Contains(t, res.NewText, ":circle [s] 3")
	assert.Contains(t, res.NewText, ":square [s] 2")
}

func TestReplaceFormRepairsUnbalancedContent(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()
	observe(t, e, path)

	res, err := e.ReplaceForm(path, locate.Selector{Name: "inc-twice"},
		"(defn inc-twice [x]\n  (inc (inc x)")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "repaired unbalanced delimiters")
	assert.Contains(t, res.NewText, "(inc (inc x)))")
}

func TestReplaceFormRejectsHardSyntaxError(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()
	observe(t, e, path)

	_, err := e.ReplaceForm(path, locate.Selector{Name: "limit"}, "(def limit \"unterminated)")
	require.Error(t, err)

	onDisk, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, editSrc, string(onDisk))
}

const twoOccSrc = `(defn f [x] (+ x 1))

(defn g [x] (+ x 1))
`

func TestReplaceExpressionAmbiguousWithoutReplaceAll(t *testing.T) {
	path := writeSource(t, twoOccSrc)
	e := newEngine()
	observe(t, e, path)

	_, err := e.ReplaceExpression(path, "(+ x 1)", "(inc x)", OpReplace, false)
	var am *AmbiguousMatchError
	require.ErrorAs(t, err, &am)
	require.Len(t, am.Candidates, 2)
	assert.Contains(t, am.Candidates[0], "line 1")
	assert.Contains(t, am.Candidates[1], "line 3")

	onDisk, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, twoOccSrc, string(onDisk))
}

func TestReplaceExpressionAll(t *testing.T) {
	path := writeSource(t, twoOccSrc)
	e := newEngine()
	observe(t, e, path)

	res, err := e.ReplaceExpression(path, "(+ x 1)", "(inc x)", OpReplace, true)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "2 occurrences matched; applied to all")
	assert.Equal(t, strings.ReplaceAll(twoOccSrc, "(+ x 1)", "(inc x)"), res.NewText)
}

func TestReplaceExpressionMatchesAcrossLines(t *testing.T) {
	src := "(defn f [x]\n  (+ x\n     1))\n"
	path := writeSource(t, src)
	e := newEngine()
	observe(t, e, path)

	res, err := e.ReplaceExpression(path, "(+ x 1)", "(inc x)", OpReplace, false)
	require.NoError(t, err)
	assert.Equal(t, "(defn f [x]\n  (inc x))\n", res.NewText)
}

func TestReplaceExpressionInsertAfter(t *testing.T) {
	path := writeSource(t, "(def a 1)\n")
	e := newEngine()
	observe(t, e, path)

	res, err := e.ReplaceExpression(path, "(def a 1)", "(def b 2)", OpInsertAfter, false)
	require.NoError(t, err)
	assert.Equal(t, "(def a 1)\n\n(def b 2)\n", res.NewText)
}

func TestReplaceExpressionInsertBefore(t *testing.T) {
	path := writeSource(t, "(def a 1)\n")
	e := newEngine()
	observe(t, e, path)

	res, err := e.ReplaceExpression(path, "(def a 1)", "(def b 2)", OpInsertBefore, false)
	require.NoError(t, err)
	assert.Equal(t, "(def b 2)\n\n(def a 1)\n", res.NewText)
}

func TestReplaceExpressionNoMatch(t *testing.T) {
	path := writeSource(t, twoOccSrc)
	e := newEngine()
	observe(t, e, path)

	_, err := e.ReplaceExpression(path, "(+ y 9)", "(inc y)", OpReplace, false)
	var nm *NoMatchError
	require.ErrorAs(t, err, &nm)
}

func TestStaleFileBlocksEdit(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()

	// Never observed in this session: blocked.
	_, err := e.ReplaceForm(path, locate.Selector{Name: "limit"}, "(def limit 11)")
	var stale *guard.StaleError
	require.ErrorAs(t, err, &stale)

	observe(t, e, path)

	// Someone else touches the file after our read: blocked again.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
	_, err = e.ReplaceForm(path, locate.Selector{Name: "limit"}, "(def limit 11)")
	require.ErrorAs(t, err, &stale)

	onDisk, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, editSrc, string(onDisk))
}

func TestEditObservesItsOwnWrite(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()
	observe(t, e, path)

	_, err := e.ReplaceForm(path, locate.Selector{Name: "limit"}, "(def limit 11)")
	require.NoError(t, err)

	// The write itself counts as an observation: a follow-up edit passes.
	_, err = e.ReplaceForm(path, locate.Selector{Name: "limit"}, "(def limit 12)")
	require.NoError(t, err)
}

func TestFindForm(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()

	f, err := e.FindForm(path, locate.Selector{Name: "inc-twice"})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "defn", f.DefType)
	assert.Equal(t, locate.KindFunction, f.Kind)

	missing, err := e.FindForm(path, locate.Selector{Name: "absent"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

const fiveDefsSrc = `(def a 1)

(def b 2)

(def c 3)

(def d 4)

(def e 5)
`

func TestCollapsedViewStats(t *testing.T) {
	path := writeSource(t, fiveDefsSrc)
	e := newEngine()

	view, stats, err := e.RenderCollapsed(path, "", "")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalForms)
	assert.Equal(t, 5, stats.CollapsedForms)
	assert.Equal(t, 0, stats.ExpandedForms)
	assert.Contains(t, view, "(def a ...)")
	assert.Contains(t, view, "(def e ...)")
	assert.NotContains(t, view, "(def a 1)")
}

func TestCollapseIdempotent(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()

	view, stats, err := e.RenderCollapsed(path, "", "")
	require.NoError(t, err)

	again := filepath.Join(t.TempDir(), "view.clj")
	require.NoError(t, os.WriteFile(again, []byte(view), 0o644))
	view2, stats2, err := e.RenderCollapsed(again, "", "")
	require.NoError(t, err)
	assert.Equal(t, view, view2)
	assert.Equal(t, stats.TotalForms, stats2.TotalForms)
}

func TestRenderCollapsedBadPattern(t *testing.T) {
	path := writeSource(t, editSrc)
	e := newEngine()

	_, _, err := e.RenderCollapsed(path, "(", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name pattern")
}

// brokenFormatter simulates an external formatter producing invalid output.
type brokenFormatter struct{}

func (brokenFormatter) Format(string) (string, error) { return "(", nil }

func TestPostEditErrorOnBadFormatterOutput(t *testing.T) {
	path := writeSource(t, editSrc)
	e := New(config.Default(), WithFormatter(brokenFormatter{}))
	observe(t, e, path)

	_, err := e.ReplaceForm(path, locate.Selector{Name: "limit"}, "(def limit 11)")
	var pe *PostEditError
	require.ErrorAs(t, err, &pe)

	onDisk, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, editSrc, string(onDisk), "bad formatter output must never reach disk")
}

func TestParseOp(t *testing.T) {
	for spelling, want := range map[string]Op{
		"":              OpReplace,
		"replace":       OpReplace,
		"insert-before": OpInsertBefore,
		"before":        OpInsertBefore,
		"insert-after":  OpInsertAfter,
		"after":         OpInsertAfter,
	} {
		got, err := ParseOp(spelling)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOp("swap")
	assert.Error(t, err)
}

func TestEditInsideReaderConditional(t *testing.T) {
	src := "#?(:clj (defn now [] 1)\n   :cljs (defn now [] 2))\n"
	path := writeSource(t, src)
	e := newEngine()
	observe(t, e, path)

	_, err := e.ReplaceForm(path,
		locate.Selector{Name: "now", Kind: "defn"},
		"(defn now [] 3)")
	var am *AmbiguousMatchError
	require.ErrorAs(t, err, &am, "both platform branches match a bare selector")
	require.Len(t, am.Candidates, 2)

	occRes, err := e.ReplaceExpression(path, "(defn now [] 1)", "(defn now [] 3)", OpReplace, false)
	require.NoError(t, err)
	assert.Equal(t, "#?(:clj (defn now [] 3)\n   :cljs (defn now [] 2))\n", occRes.NewText)
}

func TestLinterDefault(t *testing.T) {
	var l Linter = readerLinter{}
	assert.True(t, l.Lint("(ok)").OK)

	res := l.Lint("(open")
	assert.False(t, res.OK)
	assert.True(t, res.IsDelimiterError)

	res = l.Lint("\"unterminated")
	assert.False(t, res.OK)
	assert.False(t, res.IsDelimiterError)
}

func TestErrorsUnwrap(t *testing.T) {
	inner := errors.New("boom")
	pe := &PostEditError{Stage: "reformat", Err: inner}
	assert.ErrorIs(t, pe, inner)
}
