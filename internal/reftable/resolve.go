package reftable

import (
	"strings"
	"unicode"
)

// Resolve finds the route for a recognized identifier. An exact key hit wins;
// otherwise the first entry, in table order, whose key equals id after both
// are stripped of whitespace and upper-cased. Punctuation is kept, so "AB-12"
// does not resolve to "AB12".
func (t *Table) Resolve(id string) (string, bool) {
	if t == nil {
		return "", false
	}
	if route, ok := t.Get(id); ok {
		return route, true
	}
	want := normalize(id)
	for i, k := range t.norm {
		if k == want {
			return t.entries[i].Route, true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}
