package testpdf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	model.ConfigPath = "disable"
	os.Exit(m.Run())
}

func TestBytesIsReadable(t *testing.T) {
	data := Bytes("Customer XYZ1", "second page", "line one\nline (two)")

	n, err := api.PageCount(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.4")))
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, Write(path, "a"))

	n, err := api.PageCountFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\(b\)\\c`, escape(`a(b)\c`))
}
