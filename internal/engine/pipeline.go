package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"sexpedit/internal/balance"
	"sexpedit/internal/diffpatch"
	"sexpedit/internal/locate"
	"sexpedit/internal/sexp"
	"sexpedit/internal/sortutil"
	"sexpedit/internal/textutil"
)

// Op selects how a matched sub-expression run is edited.
type Op int

const (
	OpReplace Op = iota
	OpInsertBefore
	OpInsertAfter
)

// ParseOp maps the CLI/config spelling to an Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case "", "replace":
		return OpReplace, nil
	case "insert-before", "before":
		return OpInsertBefore, nil
	case "insert-after", "after":
		return OpInsertAfter, nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// EditResult is returned by every successful mutating operation.
type EditResult struct {
	ID       string
	Path     string
	NewText  string
	Diff     string
	Warnings []string
}

// pipelineState names the stages an edit moves through. Failure is terminal
// from any stage and is represented by the error return, not a state.
type pipelineState int

const (
	stateValidating pipelineState = iota
	stateRepairing
	stateLocating
	stateMutating
	stateReserializing
	stateReformatting
	stateDone
)

func (s pipelineState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateRepairing:
		return "repairing"
	case stateLocating:
		return "locating"
	case stateMutating:
		return "mutating"
	case stateReserializing:
		return "reserializing"
	case stateReformatting:
		return "reformatting"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// editJob carries one pipeline run's state between stages.
type editJob struct {
	id       string
	path     string
	src      string
	root     *sexp.Node
	frag     []*sexp.Node // replacement nodes, internal layout preserved
	warnings []string
}

func (e *Engine) transition(job *editJob, s pipelineState) {
	e.log.Debug("pipeline state",
		zap.String("op", job.id),
		zap.String("path", job.path),
		zap.String("state", s.String()))
}

// ReplaceForm replaces the whole top-level form matched by the selector with
// the replacement content. The selector must match exactly one form; zero is
// *NoMatchError, several is *AmbiguousMatchError. Unbalanced replacement
// content is repaired from indentation when possible, with a warning.
func (e *Engine) ReplaceForm(path string, sel locate.Selector, newContent string) (*EditResult, error) {
	job := &editJob{id: newID(), path: path}
	if err := e.guard.Check(path); err != nil {
		return nil, err
	}
	if err := e.begin(job, newContent); err != nil {
		return nil, err
	}

	e.transition(job, stateLocating)
	forms := locate.Forms(job.root)
	matches, err := locate.Find(forms, sel)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, &NoMatchError{Selector: sel.Describe(), Candidates: formSignatures(forms)}
	case 1:
	default:
		return nil, &AmbiguousMatchError{Selector: sel.Describe(), Candidates: describeForms(job.src, matches)}
	}

	e.transition(job, stateMutating)
	f := matches[0]
	splice(f.Parent, f.Index, f.Index, cloneNodes(job.frag))
	return e.finish(job)
}

// ReplaceExpression edits every occurrence of matchFragment, located by
// structural equality anywhere in the tree. With replaceAll false, more than
// one occurrence is *AmbiguousMatchError listing every location. With
// replaceAll true, overlapping occurrences (one nested inside another) are
// refused the same way, since applying both would double-edit bytes.
func (e *Engine) ReplaceExpression(path, matchFragment, newFragment string, op Op, replaceAll bool) (*EditResult, error) {
	job := &editJob{id: newID(), path: path}
	if err := e.guard.Check(path); err != nil {
		return nil, err
	}
	if err := e.begin(job, newFragment); err != nil {
		return nil, err
	}

	e.transition(job, stateLocating)
	occs, err := locate.FindAll(job.root, matchFragment)
	if err != nil {
		return nil, err
	}
	label := "expression " + condense(matchFragment)
	if len(occs) == 0 {
		return nil, &NoMatchError{Selector: label}
	}
	if len(occs) > 1 {
		if !replaceAll {
			return nil, &AmbiguousMatchError{Selector: label, Candidates: describeOccurrences(job.src, occs)}
		}
		for i := 0; i < len(occs); i++ {
			for j := i + 1; j < len(occs); j++ {
				if occs[i].Overlaps(occs[j]) {
					return nil, &AmbiguousMatchError{
						Selector:   label,
						Candidates: describeOccurrences(job.src, []locate.Occurrence{occs[i], occs[j]}),
					}
				}
			}
		}
		job.warnings = append(job.warnings,
			fmt.Sprintf("%d occurrences matched; applied to all", len(occs)))
	}

	e.transition(job, stateMutating)
	// Later occurrences first, so earlier child indexes stay valid when two
	// runs share a parent. Disjoint spans mean disjoint subtrees otherwise.
	sort.Slice(occs, func(i, j int) bool { return occs[i].Start > occs[j].Start })
	for _, o := range occs {
		repl := cloneNodes(job.frag)
		switch op {
		case OpReplace:
			splice(o.Parent, o.From, o.To, repl)
		case OpInsertBefore:
			repl = append(repl, separator(o.Parent))
			splice(o.Parent, o.From, o.From-1, repl)
		case OpInsertAfter:
			repl = append([]*sexp.Node{separator(o.Parent)}, repl...)
			splice(o.Parent, o.To+1, o.To, repl)
		}
	}
	return e.finish(job)
}

// begin runs the Validating and (if needed) Repairing stages: load and parse
// the target, normalize the replacement content, repair its delimiters from
// indentation when they are unbalanced.
func (e *Engine) begin(job *editJob, content string) error {
	e.transition(job, stateValidating)
	src, root, err := e.load(job.path)
	if err != nil {
		return err
	}
	job.src, job.root = src, root

	frag := textutil.TrimBlankEdges(textutil.NormalizeFragment(content))
	if err := balance.Check(frag); err != nil {
		var derr *sexp.DelimiterError
		if !errors.As(err, &derr) {
			return fmt.Errorf("replacement content: %w", err)
		}
		e.transition(job, stateRepairing)
		repaired, rerr := balance.Repair(frag)
		if rerr != nil {
			return fmt.Errorf("replacement content: %w", rerr)
		}
		frag = repaired
		job.warnings = append(job.warnings, "repaired unbalanced delimiters in replacement content")
	}
	nodes, err := fragmentNodes(frag)
	if err != nil {
		return fmt.Errorf("replacement content: %w", err)
	}
	job.frag = nodes
	return nil
}

// finish runs Reserializing, Reformatting and Done: flatten the mutated
// tree, re-validate, reformat, diff, and write the file atomically. This is
// the only place the pipeline touches disk.
func (e *Engine) finish(job *editJob) (*EditResult, error) {
	e.transition(job, stateReserializing)
	newText := sexp.Serialize(job.root)
	if err := balance.Check(newText); err != nil {
		return nil, &PostEditError{Stage: "reserialize", Err: err}
	}

	if e.cfg.Formatter.Enabled {
		e.transition(job, stateReformatting)
		formatted, err := e.format.Format(newText)
		if err != nil {
			return nil, &PostEditError{Stage: "reformat", Err: err}
		}
		if formatted != newText {
			if res := e.lint.Lint(formatted); !res.OK {
				return nil, &PostEditError{Stage: "reformat", Err: errors.New(res.Report)}
			}
			newText = formatted
		}
	}

	e.transition(job, stateDone)
	diff, oversize := diffpatch.Unified(job.path, job.path, []byte(job.src), []byte(newText),
		diffpatch.Options{Context: e.cfg.Diff.Context, MaxBytes: e.cfg.Diff.MaxBytes})
	if oversize {
		job.warnings = append(job.warnings, "diff omitted: inputs exceed the configured size limit")
	}
	if err := writeFileAtomic(job.path, []byte(newText)); err != nil {
		return nil, err
	}
	e.guard.ObserveWrite(job.path)
	e.log.Info("edit applied",
		zap.String("op", job.id),
		zap.String("path", job.path),
		zap.Int("bytes", len(newText)),
		zap.Strings("warnings", job.warnings))
	return &EditResult{
		ID:       job.id,
		Path:     job.path,
		NewText:  newText,
		Diff:     diff,
		Warnings: job.warnings,
	}, nil
}

// fragmentNodes parses replacement text and trims inert edge nodes, keeping
// interior comments and layout. At least one expression is required.
func fragmentNodes(text string) ([]*sexp.Node, error) {
	root, err := sexp.Parse(text)
	if err != nil {
		return nil, err
	}
	ch := root.Children
	for len(ch) > 0 && ch[0].Inert() {
		ch = ch[1:]
	}
	for len(ch) > 0 && ch[len(ch)-1].Inert() {
		ch = ch[:len(ch)-1]
	}
	if len(sexp.Significant(ch)) == 0 {
		return nil, fmt.Errorf("no expressions found")
	}
	return ch, nil
}

// splice replaces parent.Children[from..to] (inclusive) with repl. A from
// one past to inserts without removing.
func splice(parent *sexp.Node, from, to int, repl []*sexp.Node) {
	out := make([]*sexp.Node, 0, len(parent.Children)-(to-from+1)+len(repl))
	out = append(out, parent.Children[:from]...)
	out = append(out, repl...)
	out = append(out, parent.Children[to+1:]...)
	parent.Children = out
}

// cloneNodes deep-copies replacement nodes so apply-to-all edits never alias
// the same subtree in several places.
func cloneNodes(nodes []*sexp.Node) []*sexp.Node {
	out := make([]*sexp.Node, len(nodes))
	for i, n := range nodes {
		c := *n
		c.Children = cloneNodes(n.Children)
		out[i] = &c
	}
	return out
}

// separator is the whitespace inserted between an occurrence and inserted
// content: a blank line at the top level, a single space inside a form.
func separator(parent *sexp.Node) *sexp.Node {
	text := " "
	if parent.Kind == sexp.KindRoot {
		text = "\n\n"
	}
	return &sexp.Node{Kind: sexp.KindWhitespace, Text: text}
}

func describeOccurrences(src string, occs []locate.Occurrence) []string {
	out := make([]string, len(occs))
	for i, o := range occs {
		out[i] = fmt.Sprintf("line %d (bytes %d-%d)", lineAt(src, o.Start), o.Start, o.End)
	}
	return out
}

func formSignatures(forms []locate.Form) []string {
	var out []string
	for _, f := range forms {
		if f.Name == "" {
			continue
		}
		out = append(out, f.Signature())
	}
	return sortutil.SortedUnique(out)
}

// condense shortens a fragment for error messages.
func condense(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return fmt.Sprintf("%q", s)
}
