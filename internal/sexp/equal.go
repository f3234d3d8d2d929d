// Structural equality over parsed nodes.
//
// Two expressions are structurally equal when their kinds, delimiter types
// and significant (non-whitespace, non-comment) children are recursively
// equal. An expression written across several lines therefore equals the
// same expression written on one line.
package sexp

// Equal reports structural equality of two nodes.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindAtom, KindString:
		return a.Text == b.Text
	case KindWhitespace, KindComment:
		// Inert nodes never differ structurally.
		return true
	case KindRoot:
		return EqualSlices(Significant(a.Children), Significant(b.Children))
	default:
		// Delimiter type matters: (a b) is not [a b], and #(...) is not (...).
		if a.Open != b.Open {
			return false
		}
		return EqualSlices(Significant(a.Children), Significant(b.Children))
	}
}

// EqualSlices reports element-wise structural equality of two node slices.
// Callers are expected to pass significant nodes only.
func EqualSlices(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
