// Package locate discovers top-level forms in a parsed file and finds edit
// targets: whole definitions selected by name/kind/dispatch, or arbitrary
// sub-expressions selected by structural equality.
//
// Definition kinds are a closed variant set (value binding, function,
// dispatch implementation, other) rather than a type hierarchy; new kinds
// are added by extending the set.
package locate

import (
	"fmt"
	"strings"

	"sexpedit/internal/sexp"
)

// FormKind is the closed enumeration of definition kinds.
type FormKind int

const (
	KindOther    FormKind = iota // ns, comment blocks, any unrecognized top-level list
	KindValue                    // def, defonce
	KindFunction                 // defn, defn-, defmacro, defmulti
	KindDispatch                 // defmethod (selected by a secondary dispatch value)
)

// String returns the human-readable kind used in selectors and messages.
func (k FormKind) String() string {
	switch k {
	case KindValue:
		return "value binding"
	case KindFunction:
		return "function definition"
	case KindDispatch:
		return "dispatch implementation"
	default:
		return "other"
	}
}

// Form is a top-level definition together with location metadata.
//
// LeadStart is the byte offset where the form's attached leading block
// begins: contiguous comments directly above the form plus the whitespace
// between them and the form. A blank line breaks attachment.
type Form struct {
	Node      *sexp.Node
	Parent    *sexp.Node // node owning the form: the root, or a reader conditional
	Index     int        // index of Node in Parent.Children
	Kind      FormKind
	DefType   string     // the defining symbol as written: "defn", "defn-", "defmethod", ...
	Name      string     // bare name, without namespace qualifier
	Namespace string     // namespace qualifier if the name was written qualified
	Private   bool       // defn- spelling or ^:private metadata
	Dispatch  *sexp.Node // defmethod dispatch value (may be a vector or other literal)
	Platform  string     // reader-conditional platform key (":clj", ":cljs"), if nested in one
	LeadStart int
}

// Signature returns "name" or "name dispatch" for dispatch implementations,
// the string patterns are matched against in the collapsed view.
func (f *Form) Signature() string {
	if f.Kind == KindDispatch && f.Dispatch != nil {
		return f.Name + " " + sexp.Serialize(f.Dispatch)
	}
	return f.Name
}

// defKinds maps defining symbols to their kind. Anything absent is KindOther.
var defKinds = map[string]FormKind{
	"def":       KindValue,
	"defonce":   KindValue,
	"defn":      KindFunction,
	"defn-":     KindFunction,
	"defmacro":  KindFunction,
	"defmulti":  KindFunction,
	"defmethod": KindDispatch,
}

// Forms walks the root's children and returns every top-level form in source
// order. Reader conditionals are descended into: each platform branch is
// reported as its own form tagged with the platform key, so a definition
// inside #?(:clj ...) is still locatable.
func Forms(root *sexp.Node) []Form {
	var out []Form
	for i, n := range root.Children {
		if n.Inert() {
			continue
		}
		lead := leadStart(root.Children, i, n.Start)
		if n.ReaderConditional() {
			out = append(out, conditionalForms(n, lead)...)
			continue
		}
		out = append(out, classify(n, "", lead, root, i))
	}
	return out
}

// conditionalForms expands #?(:clj form :cljs form ...) into per-platform
// forms. The branch forms keep the conditional's leading block so edits on
// them do not orphan the comment above the conditional.
func conditionalForms(n *sexp.Node, lead int) []Form {
	var out []Form
	platform := ""
	expectBody := false
	for i, c := range n.Children {
		if c.Inert() {
			continue
		}
		if !expectBody {
			platform = ""
			if c.Kind == sexp.KindAtom {
				platform = c.Text
			}
			expectBody = true
			continue
		}
		out = append(out, classify(c, platform, lead, n, i))
		expectBody = false
	}
	return out
}

// classify builds a Form from a single top-level node.
func classify(n *sexp.Node, platform string, lead int, parent *sexp.Node, idx int) Form {
	f := Form{Node: n, Parent: parent, Index: idx, Kind: KindOther, Platform: platform, LeadStart: lead}
	if n.Kind != sexp.KindList {
		return f
	}
	sig := sexp.Significant(n.Children)
	if len(sig) == 0 || sig[0].Kind != sexp.KindAtom {
		return f
	}
	f.DefType = sig[0].Text
	if k, ok := defKinds[f.DefType]; ok {
		f.Kind = k
	}
	if strings.HasSuffix(f.DefType, "-") && f.Kind == KindFunction {
		f.Private = true
	}

	// The name follows the defining symbol, possibly behind ^meta markers.
	rest := sig[1:]
	rest, private := skipMeta(rest)
	if private {
		f.Private = true
	}
	if len(rest) == 0 || rest[0].Kind != sexp.KindAtom {
		return f
	}
	name := rest[0].Text
	if i := strings.LastIndexByte(name, '/'); i > 0 && i < len(name)-1 {
		f.Namespace = name[:i]
		f.Name = name[i+1:]
	} else {
		f.Name = name
	}

	// defmethod carries its dispatch value right after the name.
	if f.Kind == KindDispatch && len(rest) > 1 {
		f.Dispatch = rest[1]
	}
	return f
}

// skipMeta drops leading ^meta marker pairs and reports whether any of them
// marked the form private (^:private, or ^{:private true} with the value
// checked, so ^{:private false} stays public).
func skipMeta(sig []*sexp.Node) ([]*sexp.Node, bool) {
	private := false
	for len(sig) >= 2 && sig[0].Kind == sexp.KindAtom && sig[0].Text == "^" {
		meta := sig[1]
		switch {
		case meta.Kind == sexp.KindAtom && meta.Text == ":private":
			private = true
		case meta.Kind == sexp.KindMap:
			entries := sexp.Significant(meta.Children)
			for i := 0; i+1 < len(entries); i += 2 {
				key, val := entries[i], entries[i+1]
				if key.Kind == sexp.KindAtom && key.Text == ":private" &&
					val.Kind == sexp.KindAtom && val.Text == "true" {
					private = true
				}
			}
		}
		sig = sig[2:]
	}
	return sig, private
}

// leadStart walks backwards over the inert siblings directly above the form:
// whitespace without a blank line and comments attach; a blank line (or a
// non-inert sibling) stops the walk.
func leadStart(children []*sexp.Node, idx, fallback int) int {
	start := fallback
	for j := idx - 1; j >= 0; j-- {
		c := children[j]
		switch c.Kind {
		case sexp.KindComment:
			start = c.Start
		case sexp.KindWhitespace:
			if strings.Count(c.Text, "\n") >= 2 {
				return start
			}
			start = c.Start
		default:
			return start
		}
	}
	return start
}

// Selector describes a whole-form edit target.
//
// Name is required and may be namespace-qualified. Kind is optional and
// accepts either the defining symbol as written ("defn", "defmethod") or a
// kind category ("value binding", "function definition", "dispatch
// implementation"). Dispatch is the dispatch value source text for
// defmethod targets, compared structurally.
type Selector struct {
	Name     string
	Kind     string
	Dispatch string
}

// Describe renders the selector for error messages.
func (s Selector) Describe() string {
	parts := []string{s.Name}
	if s.Kind != "" {
		parts = append(parts, "kind="+s.Kind)
	}
	if s.Dispatch != "" {
		parts = append(parts, "dispatch="+s.Dispatch)
	}
	return strings.Join(parts, " ")
}

// Find returns every form matching the selector, in source order. Ambiguity
// is the caller's decision: this function never picks one of several.
//
// Matching rules, in priority order:
//  1. Exact name and kind.
//  2. The private spelling matches the public kind ("defn" finds "defn-").
//  3. Dispatch values compare by structural equality (vectors included).
//  4. Qualified names match either the bare or the qualified spelling.
func Find(forms []Form, sel Selector) ([]Form, error) {
	if strings.TrimSpace(sel.Name) == "" {
		return nil, fmt.Errorf("selector name must be non-empty")
	}
	selNS, selName := "", sel.Name
	if i := strings.LastIndexByte(sel.Name, '/'); i > 0 && i < len(sel.Name)-1 {
		selNS, selName = sel.Name[:i], sel.Name[i+1:]
	}

	var dispatch *sexp.Node
	if sel.Dispatch != "" {
		n, err := parseOneExpr(sel.Dispatch)
		if err != nil {
			return nil, fmt.Errorf("selector dispatch value %q: %w", sel.Dispatch, err)
		}
		dispatch = n
	}

	var out []Form
	for _, f := range forms {
		if f.Name != selName {
			continue
		}
		if selNS != "" && f.Namespace != "" && selNS != f.Namespace {
			continue
		}
		if !kindMatches(f, sel.Kind) {
			continue
		}
		if dispatch != nil {
			if f.Dispatch == nil || !sexp.Equal(f.Dispatch, dispatch) {
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// kindMatches accepts the concrete defining symbol (with the private
// spelling folded into its public kind) or a category name.
func kindMatches(f Form, kind string) bool {
	if kind == "" {
		return true
	}
	if kind == f.DefType {
		return true
	}
	// "defn" should find a form written with the private spelling "defn-".
	if f.DefType == kind+"-" {
		return true
	}
	switch strings.ToLower(kind) {
	case "value", "value binding":
		return f.Kind == KindValue
	case "function", "function definition":
		return f.Kind == KindFunction
	case "dispatch", "dispatch implementation", "method":
		return f.Kind == KindDispatch
	case "other":
		return f.Kind == KindOther
	}
	return false
}

// parseOneExpr parses text that must contain exactly one expression.
func parseOneExpr(text string) (*sexp.Node, error) {
	root, err := sexp.Parse(text)
	if err != nil {
		return nil, err
	}
	sig := sexp.Significant(root.Children)
	if len(sig) != 1 {
		return nil, fmt.Errorf("expected exactly one expression, found %d", len(sig))
	}
	return sig[0], nil
}
