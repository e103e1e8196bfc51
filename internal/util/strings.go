package util

import "slices"

// AllSet reports whether every value is non-empty.
func AllSet(values ...string) bool {
	return !slices.Contains(values, "")
}
