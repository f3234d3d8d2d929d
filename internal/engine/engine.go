// Package engine runs the edit pipeline: every mutating operation moves
// through validation, optional fragment repair, target location, tree
// mutation, re-serialization and reformatting before anything touches disk.
// The target file is written exactly once, atomically, at the very end; a
// failure in any stage leaves it byte-identical to what it was.
//
// The engine owns no ambient state. The staleness guard, the lint checker
// and the formatter are injected collaborators with working defaults, so a
// test (or an embedding tool) can swap any of them without touching the
// pipeline itself.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sexpedit/internal/balance"
	"sexpedit/internal/collapse"
	"sexpedit/internal/config"
	"sexpedit/internal/guard"
	"sexpedit/internal/locate"
	"sexpedit/internal/sexp"
)

// LintResult is the outcome of a lint check over whole-file text.
type LintResult struct {
	OK               bool
	Report           string
	IsDelimiterError bool
}

// Linter re-validates whole-file text after the formatter has run. The
// default is backed by the reader and balance check; an embedding tool may
// plug in an external checker.
type Linter interface {
	Lint(text string) LintResult
}

// Formatter reformats whole-file text after a successful splice. The default
// is the identity; the pipeline treats a formatter failure as fatal because
// a formatter that mangles text must never reach disk.
type Formatter interface {
	Format(text string) (string, error)
}

// Engine executes the four public operations against files on disk.
type Engine struct {
	cfg    config.Config
	guard  *guard.Guard
	lint   Linter
	format Formatter
	log    *zap.Logger
}

// Option customizes an Engine under construction.
type Option func(*Engine)

// WithGuard injects a shared staleness guard. Useful when several engines
// (or an engine and its tests) must agree on what has been observed.
func WithGuard(g *guard.Guard) Option { return func(e *Engine) { e.guard = g } }

// WithLinter replaces the default reader-backed lint check.
func WithLinter(l Linter) Option { return func(e *Engine) { e.lint = l } }

// WithFormatter replaces the default identity formatter.
func WithFormatter(f Formatter) Option { return func(e *Engine) { e.format = f } }

// WithLogger injects a logger; without one the engine is silent.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// New builds an engine from a validated configuration.
func New(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.guard == nil {
		e.guard = guard.New(cfg.GuardMode())
	}
	if e.lint == nil {
		e.lint = readerLinter{}
	}
	if e.format == nil {
		e.format = identityFormatter{}
	}
	return e
}

// Guard exposes the engine's staleness guard so callers can pre-observe
// files they have read through other channels.
func (e *Engine) Guard() *guard.Guard { return e.guard }

// readerLinter validates text with the same reader the pipeline parses with.
type readerLinter struct{}

func (readerLinter) Lint(text string) LintResult {
	err := balance.Check(text)
	if err == nil {
		return LintResult{OK: true}
	}
	_, isDelim := err.(*sexp.DelimiterError)
	return LintResult{Report: err.Error(), IsDelimiterError: isDelim}
}

// identityFormatter leaves text untouched.
type identityFormatter struct{}

func (identityFormatter) Format(text string) (string, error) { return text, nil }

// RenderCollapsed reads the file and renders the collapsed view: every
// top-level form as a signature with the body elided, except forms whose
// signature matches namePattern or whose source matches contentPattern,
// which appear in full. Patterns are Go regular expressions; either may be
// empty. The read counts as a partial observation for the staleness guard.
func (e *Engine) RenderCollapsed(path, namePattern, contentPattern string) (string, collapse.Stats, error) {
	namePat, err := compilePattern("name", namePattern)
	if err != nil {
		return "", collapse.Stats{}, err
	}
	contentPat, err := compilePattern("content", contentPattern)
	if err != nil {
		return "", collapse.Stats{}, err
	}

	src, root, err := e.load(path)
	if err != nil {
		return "", collapse.Stats{}, err
	}
	view, stats := collapse.Render(src, root, namePat, contentPat)
	e.guard.ObserveRead(path, false)
	e.log.Debug("rendered collapsed view",
		zap.String("path", path),
		zap.Int("total", stats.TotalForms),
		zap.Int("expanded", stats.ExpandedForms))
	return view, stats, nil
}

// FindForm locates at most one top-level form by selector. A selector that
// matches nothing returns (nil, nil); one that matches several returns
// *AmbiguousMatchError so the caller can tighten it. The read counts as a
// full observation.
func (e *Engine) FindForm(path string, sel locate.Selector) (*locate.Form, error) {
	src, root, err := e.load(path)
	if err != nil {
		return nil, err
	}
	matches, err := locate.Find(locate.Forms(root), sel)
	if err != nil {
		return nil, err
	}
	e.guard.ObserveRead(path, true)
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		f := matches[0]
		return &f, nil
	}
	return nil, &AmbiguousMatchError{
		Selector:   sel.Describe(),
		Candidates: describeForms(src, matches),
	}
}

// load reads and parses a target file. Read operations never repair: a file
// that does not parse is reported as-is.
func (e *Engine) load(path string) (string, *sexp.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	src := string(data)
	root, err := sexp.Parse(src)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, root, nil
}

func compilePattern(which, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	pat, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%s pattern %q: %w", which, expr, err)
	}
	return pat, nil
}

// describeForms renders match candidates for ambiguity messages.
func describeForms(src string, forms []locate.Form) []string {
	out := make([]string, len(forms))
	for i, f := range forms {
		desc := f.DefType + " " + f.Signature()
		if f.Platform != "" {
			desc += " " + f.Platform
		}
		out[i] = fmt.Sprintf("%s at line %d", strings.TrimSpace(desc), lineAt(src, f.Node.Start))
	}
	return out
}

// lineAt returns the 1-based line number of a byte offset.
func lineAt(src string, off int) int {
	if off > len(src) {
		off = len(src)
	}
	return 1 + strings.Count(src[:off], "\n")
}

// writeFileAtomic writes data next to path and renames it into place, so a
// crash mid-write can never leave a truncated target. Mode is preserved for
// an existing target.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// newID tags one pipeline run for logging and the edit result.
func newID() string { return uuid.NewString() }
