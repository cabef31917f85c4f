package reftable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKeepsFirstPositionAndLastValue(t *testing.T) {
	tbl := New(
		Entry{Key: "A1", Route: "North"},
		Entry{Key: "B2", Route: "South"},
		Entry{Key: "A1", Route: "East"},
	)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"A1", "B2"}, tbl.Keys())
	route, ok := tbl.Get("A1")
	assert.True(t, ok)
	assert.Equal(t, "East", route)
}

func TestEntriesReturnsCopy(t *testing.T) {
	tbl := New(Entry{Key: "A1", Route: "North"})
	entries := tbl.Entries()
	entries[0].Route = "changed"

	route, _ := tbl.Get("A1")
	assert.Equal(t, "North", route)
}

func TestRoutesDistinctInOrder(t *testing.T) {
	tbl := New(
		Entry{Key: "A1", Route: "North"},
		Entry{Key: "B2", Route: "South"},
		Entry{Key: "C3", Route: "North"},
	)
	assert.Equal(t, []string{"North", "South"}, tbl.Routes())
}

func TestSearch(t *testing.T) {
	tbl := New(
		Entry{Key: "KSG101", Route: "Route 7"},
		Entry{Key: "ARAM045", Route: "North"},
		Entry{Key: "XYZ1", Route: "route 9"},
	)

	assert.Len(t, tbl.Search(""), 3)
	assert.Equal(t, []Entry{{Key: "ARAM045", Route: "North"}}, tbl.Search("aram"))
	assert.Equal(t, []string{"KSG101", "XYZ1"}, keysOf(tbl.Search("ROUTE")))
	assert.Empty(t, tbl.Search("missing"))
}

func TestNilTable(t *testing.T) {
	var tbl *Table
	assert.Equal(t, 0, tbl.Len())
	_, ok := tbl.Resolve("A1")
	assert.False(t, ok)
	assert.Nil(t, tbl.Keys())
}

func keysOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}
