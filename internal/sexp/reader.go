// The reader: source text to lossless tree.
//
// This file implements the tokenizer and tree builder. Highlights:
//   - Every character lands in exactly one node (whitespace and comments are
//     first-class), which is what makes Serialize a byte-exact inverse.
//   - Commas are whitespace, as in Clojure.
//   - Dispatch forms: #{...} sets, #(...) anonymous fns, #"..." regex
//     strings, #?(...)/#?@(...) reader conditionals (parsed as ordinary
//     lists with their Open text recorded).
//   - Quote-family prefixes (', `, ~, ~@, @, ^, #', #_) are emitted as
//     marker atoms preceding the expression they annotate.
//   - Delimiter imbalance is reported as *DelimiterError so callers can
//     route it to auto-repair; every other failure is a *SyntaxError.
package sexp

import "fmt"

// Parse reads source text into a format-preserving tree.
// On success the returned root satisfies Serialize(root) == src.
func Parse(src string) (*Node, error) {
	p := &parser{src: src}
	return p.run()
}

type parser struct {
	src string
	pos int
}

// openFrame tracks an unclosed composite during the scan.
type openFrame struct {
	node  *Node
	close string // expected closing delimiter text
}

func (p *parser) run() (*Node, error) {
	root := &Node{Kind: KindRoot, Start: 0, End: len(p.src)}
	var stack []openFrame

	appendChild := func(n *Node) {
		if len(stack) > 0 {
			top := stack[len(stack)-1].node
			top.Children = append(top.Children, n)
		} else {
			root.Children = append(root.Children, n)
		}
	}
	push := func(n *Node, close string) {
		appendChild(n)
		stack = append(stack, openFrame{node: n, close: close})
	}

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		start := p.pos
		switch {
		case isSpace(c):
			p.advanceWhile(isSpace)
			appendChild(&Node{Kind: KindWhitespace, Text: p.src[start:p.pos], Start: start, End: p.pos})

		case c == ';':
			p.advanceWhile(func(b byte) bool { return b != '\n' })
			appendChild(&Node{Kind: KindComment, Text: p.src[start:p.pos], Start: start, End: p.pos})

		case c == '"':
			if err := p.scanString(); err != nil {
				return nil, err
			}
			appendChild(&Node{Kind: KindString, Text: p.src[start:p.pos], Start: start, End: p.pos})

		case c == '#':
			n, close, err := p.scanDispatch()
			if err != nil {
				return nil, err
			}
			if close != "" {
				push(n, close)
			} else {
				appendChild(n)
			}

		case c == '\\':
			if err := p.scanChar(); err != nil {
				return nil, err
			}
			appendChild(&Node{Kind: KindAtom, Text: p.src[start:p.pos], Start: start, End: p.pos})

		case c == '\'' || c == '`' || c == '@' || c == '^':
			p.pos++
			appendChild(&Node{Kind: KindAtom, Text: p.src[start:p.pos], Start: start, End: p.pos})

		case c == '~':
			p.pos++
			if p.pos < len(p.src) && p.src[p.pos] == '@' {
				p.pos++
			}
			appendChild(&Node{Kind: KindAtom, Text: p.src[start:p.pos], Start: start, End: p.pos})

		case c == '(' || c == '[' || c == '{':
			p.pos++
			kind, close := delimFor(c)
			push(&Node{Kind: kind, Open: string(c), Start: start}, close)

		case c == ')' || c == ']' || c == '}':
			p.pos++
			if len(stack) == 0 {
				return nil, &DelimiterError{
					Offset: start,
					Delim:  string(c),
					Msg:    fmt.Sprintf("unmatched closing %q", string(c)),
				}
			}
			top := stack[len(stack)-1]
			if string(c) != top.close {
				return nil, &DelimiterError{
					Offset: start,
					Delim:  string(c),
					Msg: fmt.Sprintf("mismatched delimiter: expected %q to close %q opened at offset %d, found %q",
						top.close, top.node.Open, top.node.Start, string(c)),
				}
			}
			top.node.Close = top.close
			top.node.End = p.pos
			stack = stack[:len(stack)-1]

		default:
			p.advanceWhile(isAtomChar)
			appendChild(&Node{Kind: KindAtom, Text: p.src[start:p.pos], Start: start, End: p.pos})
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, &DelimiterError{
			Offset: top.node.Start,
			Delim:  top.node.Open,
			Msg:    fmt.Sprintf("unclosed %q opened at offset %d", top.node.Open, top.node.Start),
		}
	}
	return root, nil
}

// scanDispatch handles tokens starting with '#'. It returns either a leaf
// node (close == "") or a freshly opened composite plus its expected closer.
func (p *parser) scanDispatch() (*Node, string, error) {
	start := p.pos
	if p.pos+1 >= len(p.src) {
		p.pos++
		return &Node{Kind: KindAtom, Text: "#", Start: start, End: p.pos}, "", nil
	}
	switch p.src[p.pos+1] {
	case '"':
		p.pos++ // consume '#', scanString consumes the quotes
		if err := p.scanString(); err != nil {
			return nil, "", err
		}
		return &Node{Kind: KindString, Text: p.src[start:p.pos], Start: start, End: p.pos}, "", nil
	case '{':
		p.pos += 2
		return &Node{Kind: KindSet, Open: "#{", Start: start}, "}", nil
	case '(':
		p.pos += 2
		return &Node{Kind: KindList, Open: "#(", Start: start}, ")", nil
	case '?':
		open := "#?("
		at := p.pos + 2
		if at < len(p.src) && p.src[at] == '@' {
			open = "#?@("
			at++
		}
		if at >= len(p.src) || p.src[at] != '(' {
			return nil, "", &SyntaxError{Offset: start, Msg: "reader conditional must be followed by '('"}
		}
		p.pos = at + 1
		return &Node{Kind: KindList, Open: open, Start: start}, ")", nil
	case '_':
		p.pos += 2
		return &Node{Kind: KindAtom, Text: "#_", Start: start, End: p.pos}, "", nil
	case '\'':
		p.pos += 2
		return &Node{Kind: KindAtom, Text: "#'", Start: start, End: p.pos}, "", nil
	default:
		// Tagged literal / symbolic value: read '#' plus atom characters
		// (#inst, ##Inf, #:ns for namespaced maps, ...).
		p.pos++
		p.advanceWhile(isAtomChar)
		return &Node{Kind: KindAtom, Text: p.src[start:p.pos], Start: start, End: p.pos}, "", nil
	}
}

// scanString consumes a double-quoted string starting at the current '"'.
func (p *parser) scanString() error {
	start := p.pos
	p.pos++ // opening quote
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
		case '"':
			p.pos++
			return nil
		default:
			p.pos++
		}
	}
	return &SyntaxError{Offset: start, Msg: "unterminated string literal"}
}

// scanChar consumes a character literal: '\' plus one character, extended by
// trailing alphanumerics for named and coded chars (\newline, \u03a9, \o377).
func (p *parser) scanChar() error {
	start := p.pos
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return &SyntaxError{Offset: start, Msg: "unterminated character literal"}
	}
	first := p.src[p.pos]
	p.pos++
	if isAlnum(first) {
		p.advanceWhile(isAlnum)
	}
	return nil
}

func (p *parser) advanceWhile(pred func(byte) bool) {
	for p.pos < len(p.src) && pred(p.src[p.pos]) {
		p.pos++
	}
}

func delimFor(open byte) (NodeKind, string) {
	switch open {
	case '(':
		return KindList, ")"
	case '[':
		return KindVector, "]"
	default:
		return KindMap, "}"
	}
}

// isSpace matches Clojure whitespace; commas are whitespace.
func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', ',':
		return true
	}
	return false
}

// isAtomChar matches any byte that can continue an atom token. Atoms stop at
// whitespace, delimiters, string quotes and comment starts; quote-family
// characters are only special at token start (foo' is one symbol).
func isAtomChar(b byte) bool {
	if isSpace(b) {
		return false
	}
	switch b {
	case '(', ')', '[', ']', '{', '}', '"', ';':
		return false
	}
	return true
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
