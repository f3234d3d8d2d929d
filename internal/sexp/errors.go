package sexp

import "fmt"

// SyntaxError reports input that cannot be tokenized or parsed.
// Offset is a 0-based byte offset into the input.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Msg)
}

// DelimiterError is the distinguished subclass of syntax failure caused only
// by delimiter imbalance (unclosed, unmatched, or mismatched brackets).
// Callers route it to the balancer for auto-repair instead of failing.
type DelimiterError struct {
	Offset int    // byte offset of the offending (or unclosed) delimiter
	Delim  string // delimiter text involved, e.g. "(" or "]"
	Msg    string
}

func (e *DelimiterError) Error() string {
	return fmt.Sprintf("delimiter error at offset %d: %s", e.Offset, e.Msg)
}
