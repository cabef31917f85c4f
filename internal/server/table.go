package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/reftable"
)

type tableResp struct {
	Count   int              `json:"count"`
	Total   int              `json:"total"`
	Entries []reftable.Entry `json:"entries"`
}

// handleTableGet lists table entries, filtered by ?q= when present.
func (s *Server) handleTableGet(w http.ResponseWriter, r *http.Request) {
	t, err := reftable.Load(s.deps.TablePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusOK, tableResp{Entries: []reftable.Entry{}})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries := t.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, tableResp{Count: len(entries), Total: t.Len(), Entries: entries})
}

// handleTableImport replaces the table with the rows of an uploaded spreadsheet.
func (s *Server) handleTableImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	dir := filepath.Join(s.deps.UploadDir, "tables")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// keep the extension; import uses it to tell ZIP/OLE spreadsheet formats apart
	tmp := filepath.Join(dir, uuid.NewString()+filepath.Ext(header.Filename))
	out, err := os.Create(tmp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(tmp)
	_, err = io.Copy(out, file)
	out.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload failed")
		return
	}

	t, err := reftable.ImportSpreadsheet(r.Context(), tmp, s.deps.Import)
	if err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, reftable.ErrUnsupportedSpreadsheet) {
			code = http.StatusUnsupportedMediaType
		}
		writeError(w, code, err.Error())
		return
	}
	if err := reftable.Save(s.deps.TablePath, t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("file", header.Filename).Int("entries", t.Len()).Msg("reference table imported")
	entries := t.Entries()
	writeJSON(w, http.StatusOK, tableResp{Count: len(entries), Total: t.Len(), Entries: entries})
}
