// Package balance validates and repairs delimiter balance in Clojure-syntax
// text.
//
// Check is exact: it defers entirely to the reader. Repair is the one
// deliberately heuristic component of the engine: it treats each line's
// leading indentation as the authoritative signal for structure and
// reconciles it with the explicit delimiters, inserting missing closers and
// dropping stray ones. When the two signals conflict (so that two repairs
// are equally plausible) it declines with ErrUnrepairable instead of
// guessing; the caller then surfaces the original reader error.
//
// Conventions:
//   - Balanced input is returned unchanged, which makes Repair a fixed
//     point: Repair(Repair(t)) == Repair(t).
//   - Repair never touches strings, comments or character literals.
//   - The repaired text is re-validated before being returned; a repair
//     that still fails to parse is reported as ErrUnrepairable, never
//     returned silently.
package balance

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"sexpedit/internal/sexp"
)

// ErrUnrepairable is the sentinel for a declined repair. The concrete error
// is always an *UnrepairableError carrying the original reader failure.
var ErrUnrepairable = errors.New("delimiter repair declined")

// UnrepairableError explains why auto-repair declined and preserves the
// original delimiter error for the caller to surface.
type UnrepairableError struct {
	Reason string
	Orig   error
}

func (e *UnrepairableError) Error() string {
	return fmt.Sprintf("%v: %s (original error: %v)", ErrUnrepairable, e.Reason, e.Orig)
}

// Unwrap exposes both the sentinel and the original error to errors.Is/As.
func (e *UnrepairableError) Unwrap() []error {
	return []error{ErrUnrepairable, e.Orig}
}

// Check parses the text and reports nil, a *sexp.DelimiterError (candidate
// for Repair) or a *sexp.SyntaxError (fatal).
func Check(text string) error {
	_, err := sexp.Parse(text)
	return err
}

// Repair returns text with delimiter balance restored, or the input
// unchanged when it already parses. Non-delimiter syntax errors are returned
// as-is; ambiguous imbalance yields an *UnrepairableError.
func Repair(text string) (string, error) {
	orig := Check(text)
	if orig == nil {
		return text, nil
	}
	var de *sexp.DelimiterError
	if !errors.As(orig, &de) {
		// Not a delimiter problem; nothing we are allowed to fix.
		return "", orig
	}

	edits, err := planEdits(text, orig)
	if err != nil {
		return "", err
	}
	repaired := applyEdits(text, edits)

	if err := Check(repaired); err != nil {
		return "", &UnrepairableError{Reason: "repaired text still fails to parse", Orig: orig}
	}
	return repaired, nil
}

// edit is a single planned change: delete n bytes at pos (n > 0) or insert
// ins at pos (n == 0).
type edit struct {
	pos int
	n   int
	ins string
}

// frame is an open delimiter awaiting its closer.
type frame struct {
	open  string
	close string
	line  int
	col   int
}

// planEdits scans the text once and decides where closers must be inserted
// or removed. It returns an *UnrepairableError when the indentation signal
// and the explicit delimiters contradict each other.
func planEdits(text string, orig error) ([]edit, error) {
	var (
		edits       []edit
		stack       []frame
		pos         int
		line        = 1
		lineStart   int
		lastSigLine int // line of the most recent significant token
		lastSigEnd  int // offset just past that token
		inferred    bool
	)

	closerFor := map[string]string{"(": ")", "[": "]", "{": "}", "#{": "}", "#(": ")", "#?(": ")", "#?@(": ")"}

	// beginToken runs the indentation inference: when the first significant
	// token of a new line sits at or left of the column of a still-open
	// delimiter from an earlier line, that delimiter must close before this
	// line begins.
	beginToken := func(isCloser bool) {
		if line == lastSigLine || isCloser {
			return
		}
		col := pos - lineStart
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.line >= line || top.col < col {
				break
			}
			edits = append(edits, edit{pos: lastSigEnd, ins: top.close})
			stack = stack[:len(stack)-1]
			inferred = true
		}
	}
	endToken := func(end int) {
		lastSigLine = line
		lastSigEnd = end
	}
	countLines := func(from, to int) {
		for i := from; i < to; i++ {
			if text[i] == '\n' {
				line++
				lineStart = i + 1
			}
		}
	}

	for pos < len(text) {
		c := text[pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == ',':
			pos++
		case c == '\n':
			line++
			pos++
			lineStart = pos
		case c == ';':
			for pos < len(text) && text[pos] != '\n' {
				pos++
			}
		case c == '"':
			beginToken(false)
			start := pos
			pos = skipString(text, pos)
			countLines(start, pos)
			endToken(pos)
		case c == '\\':
			beginToken(false)
			pos++
			if pos < len(text) {
				pos++
			}
			for pos < len(text) && isAlnumByte(text[pos]) {
				pos++
			}
			endToken(pos)
		case c == '(' || c == '[' || c == '{':
			beginToken(false)
			open := string(c)
			stack = append(stack, frame{open: open, close: closerFor[open], line: line, col: pos - lineStart})
			pos++
			endToken(pos)
		case c == ')' || c == ']' || c == '}':
			cl := string(c)
			if len(stack) == 0 {
				if inferred {
					return nil, &UnrepairableError{
						Reason: fmt.Sprintf("indentation closed a form but an explicit %q remains at offset %d", cl, pos),
						Orig:   orig,
					}
				}
				// Stray closer with no indentation signal involved: drop it.
				edits = append(edits, edit{pos: pos, n: 1})
				pos++
				endToken(pos)
				continue
			}
			top := stack[len(stack)-1]
			if cl == top.close {
				stack = stack[:len(stack)-1]
				pos++
				endToken(pos)
				continue
			}
			// Mismatch: if this closer matches a deeper open, close the
			// intervening frames here; otherwise the pairing is ambiguous.
			matched := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].close == cl {
					matched = i
					break
				}
			}
			if matched < 0 {
				return nil, &UnrepairableError{
					Reason: fmt.Sprintf("closing %q at offset %d matches no open delimiter", cl, pos),
					Orig:   orig,
				}
			}
			for i := len(stack) - 1; i > matched; i-- {
				edits = append(edits, edit{pos: pos, ins: stack[i].close})
			}
			stack = stack[:matched]
			pos++
			endToken(pos)
		case c == '#':
			if open, w := dispatchOpen(text, pos); open != "" {
				beginToken(false)
				stack = append(stack, frame{open: open, close: closerFor[open], line: line, col: pos - lineStart})
				pos += w
				endToken(pos)
				continue
			}
			if pos+1 < len(text) && text[pos+1] == '"' {
				beginToken(false)
				start := pos
				pos = skipString(text, pos+1)
				countLines(start, pos)
				endToken(pos)
				continue
			}
			beginToken(false)
			pos = skipAtom(text, pos)
			endToken(pos)
		default:
			beginToken(false)
			pos = skipAtom(text, pos)
			endToken(pos)
		}
	}

	// EOF closes whatever is still open, innermost first, after the last
	// significant token.
	for i := len(stack) - 1; i >= 0; i-- {
		edits = append(edits, edit{pos: lastSigEnd, ins: stack[i].close})
	}
	return edits, nil
}

// applyEdits rebuilds the text left to right, splicing in the planned edits.
// Insertions at the same position keep their planned order.
func applyEdits(text string, edits []edit) string {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].pos < edits[j].pos })
	var b strings.Builder
	b.Grow(len(text) + len(edits))
	prev := 0
	for _, e := range edits {
		b.WriteString(text[prev:e.pos])
		if e.n > 0 {
			prev = e.pos + e.n
		} else {
			b.WriteString(e.ins)
			prev = e.pos
		}
	}
	b.WriteString(text[prev:])
	return b.String()
}

// skipString advances past a double-quoted string starting at the opening
// quote. An unterminated string runs to EOF; the reader reports that case.
func skipString(text string, pos int) int {
	pos++
	for pos < len(text) {
		switch text[pos] {
		case '\\':
			pos += 2
		case '"':
			return pos + 1
		default:
			pos++
		}
	}
	return pos
}

// skipAtom advances past one atom token, mirroring the reader's rules.
func skipAtom(text string, pos int) int {
	pos++
	for pos < len(text) {
		c := text[pos]
		switch c {
		case ' ', '\t', '\n', '\r', ',', '(', ')', '[', ']', '{', '}', '"', ';':
			return pos
		}
		pos++
	}
	return pos
}

// dispatchOpen recognizes '#'-prefixed opening delimiters at pos and returns
// the open text plus its byte width ("" when pos is not such an opener).
func dispatchOpen(text string, pos int) (string, int) {
	rest := text[pos:]
	switch {
	case strings.HasPrefix(rest, "#?@("):
		return "#?@(", 4
	case strings.HasPrefix(rest, "#?("):
		return "#?(", 3
	case strings.HasPrefix(rest, "#{"):
		return "#{", 2
	case strings.HasPrefix(rest, "#("):
		return "#(", 2
	}
	return "", 0
}

func isAlnumByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
