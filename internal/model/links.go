package model

import "slices"

// Contains reports whether set contains id.
func Contains(set []string, id string) bool {
	return slices.Contains(set, id)
}

// Union returns set with every id from add appended, in order, skipping
// duplicates. The input slice is never modified.
func Union(set []string, add ...string) []string {
	out := make([]string, 0, len(set)+len(add))
	seen := make(map[string]bool, len(set)+len(add))
	for _, id := range set {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range add {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Without returns a copy of set with every occurrence of the given ids removed.
func Without(set []string, remove ...string) []string {
	out := make([]string, 0, len(set))
	for _, id := range set {
		if !slices.Contains(remove, id) {
			out = append(out, id)
		}
	}
	return out
}

// ContainsAll reports whether every id in want is present in set.
func ContainsAll(set []string, want ...string) bool {
	for _, id := range want {
		if !slices.Contains(set, id) {
			return false
		}
	}
	return true
}

// SameMembers reports whether a and b hold the same ids, ignoring order and
// duplicates.
func SameMembers(a, b []string) bool {
	return ContainsAll(a, b...) && ContainsAll(b, a...)
}
