// Package sexp implements a lossless reader for Clojure-syntax source text.
//
// The tree it produces is format-preserving: whitespace runs and comments are
// ordinary nodes, every input character belongs to exactly one node, and
// Serialize reproduces the original text byte-for-byte (the round-trip law).
// Composite nodes record their exact opening/closing delimiter text so later
// stages can reason about delimiter type (list vs vector vs map vs set)
// independently of content.
package sexp

import "strings"

// NodeKind classifies a tree node.
type NodeKind int

const (
	KindRoot       NodeKind = iota // file root; children are top-level nodes
	KindWhitespace                 // run of spaces/tabs/newlines/commas
	KindComment                    // ';' comment up to (not including) the newline
	KindAtom                       // symbol, keyword, number, char literal, reader marker
	KindString                     // "..." or #"..." including the quotes
	KindList                       // (...), #(...), #?(...), #?@(...)
	KindVector                     // [...]
	KindMap                        // {...}
	KindSet                        // #{...}
)

// String returns a short tag for the kind, used in error messages and logs.
func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindWhitespace:
		return "whitespace"
	case KindComment:
		return "comment"
	case KindAtom:
		return "atom"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

// Node is a single element of the format-preserving tree.
//
// For leaf kinds (whitespace, comment, atom, string), Text holds the exact
// source slice. For composite kinds, Open/Close hold the delimiter text
// (e.g. "(" / ")", "#{" / "}", "#?(" / ")") and Children hold every nested
// node in source order, whitespace and comments included.
//
// Start/End are byte offsets into the original text: Start is the offset of
// the node's first byte, End the offset just past its last byte.
type Node struct {
	Kind     NodeKind
	Open     string
	Close    string
	Text     string
	Children []*Node
	Start    int
	End      int
}

// Inert reports whether the node carries no structural meaning
// (whitespace or comment).
func (n *Node) Inert() bool {
	return n.Kind == KindWhitespace || n.Kind == KindComment
}

// Composite reports whether the node is a delimited collection.
func (n *Node) Composite() bool {
	switch n.Kind {
	case KindList, KindVector, KindMap, KindSet:
		return true
	}
	return false
}

// ReaderConditional reports whether a list node is a platform reader
// conditional (#?(...) or #?@(...)).
func (n *Node) ReaderConditional() bool {
	return n.Kind == KindList && (n.Open == "#?(" || n.Open == "#?@(")
}

// Significant filters out whitespace and comment nodes, preserving order.
// Structural operations (equality, form discovery, matching) work on the
// significant children only.
func Significant(children []*Node) []*Node {
	out := make([]*Node, 0, len(children))
	for _, c := range children {
		if !c.Inert() {
			out = append(out, c)
		}
	}
	return out
}

// Serialize flattens a tree back to source text. For an unmutated tree this
// is byte-identical to the parsed input; for a mutated tree it is valid by
// construction because composites re-emit their own delimiters.
func Serialize(n *Node) string {
	var b strings.Builder
	writeNode(&b, n)
	return b.String()
}

func writeNode(b *strings.Builder, n *Node) {
	switch n.Kind {
	case KindRoot:
		for _, c := range n.Children {
			writeNode(b, c)
		}
	case KindList, KindVector, KindMap, KindSet:
		b.WriteString(n.Open)
		for _, c := range n.Children {
			writeNode(b, c)
		}
		b.WriteString(n.Close)
	default:
		b.WriteString(n.Text)
	}
}
