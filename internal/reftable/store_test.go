package reftable

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePreservesFileOrder(t *testing.T) {
	src := `{"ZZ9": "Late", "AA1": "Early", "MM5": 42, "NN6": true}`

	tbl, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"ZZ9", "AA1", "MM5", "NN6"}, tbl.Keys())
	route, _ := tbl.Get("MM5")
	assert.Equal(t, "42", route)
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode(strings.NewReader(`["A1", "North"]`))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(`{"A1": {"route": "North"}}`))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(``))
	assert.Error(t, err)
}

func TestDecodeRejectsNullRoute(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"A1": "North", "B2": null}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"B2"`)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	for _, src := range []string{
		`{"A1": "North"} {"B2": "South"}`,
		`{"A1": "North"}]`,
		`{"A1": "North"} garbage`,
	} {
		_, err := Decode(strings.NewReader(src))
		assert.Error(t, err, src)
	}

	tbl, err := Decode(strings.NewReader("{\"A1\": \"North\"}\n\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "driver_data.json")
	tbl := New(
		Entry{Key: "KSG101", Route: "Route <7>"},
		Entry{Key: "ARAM045", Route: "Nörth"},
	)

	require.NoError(t, Save(path, tbl))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"KSG101\": \"Route <7>\",\n    \"ARAM045\": \"Nörth\"\n}\n", string(raw))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Entries(), loaded.Entries())
}

func TestSaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, Save(path, New()))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
