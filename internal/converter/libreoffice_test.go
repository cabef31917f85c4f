package converter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "drivers.xlsx"), ExpectedOutputPath("/in/drivers.ods", "out"))
	assert.Equal(t, filepath.Join("out", "a.b.xlsx"), ExpectedOutputPath("a.b.xls", "out"))
}

func TestValidateInput(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, validateInput(filepath.Join(dir, "missing.xls")))
	assert.Error(t, validateInput(dir))

	empty := filepath.Join(dir, "empty.xls")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Error(t, validateInput(empty))

	ok := filepath.Join(dir, "book.xls")
	require.NoError(t, os.WriteFile(ok, []byte("data"), 0o644))
	assert.NoError(t, validateInput(ok))
}

func TestMissingBinary(t *testing.T) {
	l := NewLibreOffice("routesort-no-such-binary", 0)
	assert.False(t, l.IsAvailable())
	_, err := l.ToXLSX(context.Background(), "book.xls", t.TempDir())
	assert.ErrorIs(t, err, ErrNotInstalled)
}
