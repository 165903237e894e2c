package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds compatibility characters (full-width letters, ligatures)
// so that visually identical login ids compare equal.
func Normalize(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}
