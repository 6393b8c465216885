package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey folds a game name for case-insensitive ordering and comparison.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// SameName compares two game names ignoring case and surrounding space.
func SameName(a, b string) bool {
	return NameKey(a) == NameKey(b)
}
