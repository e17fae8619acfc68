package utils

import (
	"strconv"
)

// PositiveIntOr parses s, returning fallback when it is empty, malformed or < 1.
func PositiveIntOr(s string, fallback int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i < 1 {
		return fallback
	}
	return i
}
