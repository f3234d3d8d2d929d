// Package sortutil provides ordering helpers for user-facing lists.
package sortutil

import "sort"

// SortedUnique returns a sorted copy of list with duplicates removed. The
// input is not modified. Candidate lists in error messages go through this
// so output is stable regardless of discovery order.
func SortedUnique(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
