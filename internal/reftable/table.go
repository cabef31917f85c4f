// Package reftable holds the identifier → route mapping that drives page
// classification. A Table is built once and never mutated afterwards; its
// iteration order is the order entries were supplied in.
package reftable

import "strings"

// Entry is a single identifier → route pair.
type Entry struct {
	Key   string `json:"key"`
	Route string `json:"route"`
}

// Table is an immutable, insertion-ordered identifier → route mapping.
type Table struct {
	entries []Entry
	index   map[string]int
	norm    []string // normalized keys, parallel to entries
}

// New builds a table from entries. A repeated key keeps its first position
// and takes the last value, like a map literal filled row by row.
func New(entries ...Entry) *Table {
	t := &Table{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if i, ok := t.index[e.Key]; ok {
			t.entries[i].Route = e.Route
			continue
		}
		t.index[e.Key] = len(t.entries)
		t.entries = append(t.entries, e)
		t.norm = append(t.norm, normalize(e.Key))
	}
	return t
}

// Len returns the number of distinct keys.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Get returns the route stored under key exactly.
func (t *Table) Get(key string) (string, bool) {
	if t == nil {
		return "", false
	}
	i, ok := t.index[key]
	if !ok {
		return "", false
	}
	return t.entries[i].Route, true
}

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Keys returns the keys in table order.
func (t *Table) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Key
	}
	return out
}

// Routes returns the distinct routes in order of first appearance.
func (t *Table) Routes() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, e := range t.entries {
		if _, ok := seen[e.Route]; ok {
			continue
		}
		seen[e.Route] = struct{}{}
		out = append(out, e.Route)
	}
	return out
}

// Search returns entries whose key or route contains term, case-insensitively.
// An empty term matches everything.
func (t *Table) Search(term string) []Entry {
	if t == nil {
		return nil
	}
	term = strings.ToLower(term)
	if term == "" {
		return t.Entries()
	}
	var out []Entry
	for _, e := range t.entries {
		if strings.Contains(strings.ToLower(e.Key), term) || strings.Contains(strings.ToLower(e.Route), term) {
			out = append(out, e)
		}
	}
	return out
}
