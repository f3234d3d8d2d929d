package engine

import (
	"fmt"
	"strings"
)

// NoMatchError reports that a selector or match fragment found nothing.
// Candidates lists what the file does contain so the caller can refine the
// selector without another round trip.
type NoMatchError struct {
	Selector   string
	Candidates []string
}

func (e *NoMatchError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("no match for %s", e.Selector)
	}
	return fmt.Sprintf("no match for %s; file defines: %s",
		e.Selector, strings.Join(e.Candidates, ", "))
}

// AmbiguousMatchError reports that a selector matched more than one target
// (or that apply-to-all occurrences overlap). The edit is refused rather
// than guessing; Candidates describes every match with its location.
type AmbiguousMatchError struct {
	Selector   string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %s: %d candidates (%s)",
		e.Selector, len(e.Candidates), strings.Join(e.Candidates, "; "))
}

// PostEditError reports that the pipeline produced text that fails
// re-validation after the splice or after reformatting. The target file is
// left untouched; this indicates a bug in the mutation or the formatter, not
// in the caller's input.
type PostEditError struct {
	Stage string
	Err   error
}

func (e *PostEditError) Error() string {
	return fmt.Sprintf("post-edit inconsistency during %s: %v", e.Stage, e.Err)
}

func (e *PostEditError) Unwrap() error { return e.Err }
