package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/local/routesort/internal/filetype"
	"github.com/local/routesort/internal/queue"
	"github.com/local/routesort/internal/store"
)

type submitReq struct {
	FileURL  string `json:"file_url"`
	FilePath string `json:"file_path"`
}

type submitResp struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	jobID := uuid.NewString()

	var (
		document string
		uploaded bool
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		path, code, err := s.saveUpload(w, r, jobID)
		if err != nil {
			writeError(w, code, err.Error())
			return
		}
		document, uploaded = path, true
	} else {
		var req submitReq
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		document = req.FileURL
		if document == "" {
			document = req.FilePath
		}
		if document == "" {
			writeError(w, http.StatusBadRequest, "missing file_url or file_path")
			return
		}
		if err := s.checkReference(document); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
	}

	job := queue.Job{
		ID:          jobID,
		Document:    document,
		OutputDir:   filepath.Join(s.deps.OutputDir, jobID),
		SubmittedAt: time.Now().UTC(),
		Uploaded:    uploaded,
	}
	ctx := r.Context()
	if err := s.deps.Status.Set(ctx, jobID, store.Status{State: store.StateQueued, Message: "queued", Document: document}); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to record job status")
		if uploaded {
			os.Remove(document)
		}
		writeError(w, http.StatusServiceUnavailable, "status store unavailable")
		return
	}
	if err := s.deps.Queue.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to enqueue job")
		_ = s.deps.Status.Set(ctx, jobID, store.Status{State: store.StateFailed, Message: "enqueue failed", Document: document})
		if uploaded {
			os.Remove(document)
		}
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	log.Info().Str("job_id", jobID).Str("document", document).Msg("job created")
	writeJSON(w, http.StatusAccepted, submitResp{JobID: jobID, Status: string(store.StateQueued)})
}

var errReferenceDenied = errors.New("only s3:// references and files under the upload directory are accepted")

// checkReference limits JSON submissions to s3:// objects and files already
// in the upload directory unless external references are enabled.
func (s *Server) checkReference(document string) error {
	if s.deps.AllowExternalRefs {
		return nil
	}
	if scheme, _, ok := strings.Cut(document, "://"); ok {
		if strings.EqualFold(scheme, "s3") {
			return nil
		}
		return errReferenceDenied
	}
	if s.deps.UploadDir == "" {
		return errReferenceDenied
	}
	root, err := filepath.Abs(s.deps.UploadDir)
	if err != nil {
		return errReferenceDenied
	}
	path, err := filepath.Abs(document)
	if err != nil {
		return errReferenceDenied
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errReferenceDenied
	}
	return nil
}

// saveUpload stores the multipart "file" part as <UploadDir>/<jobID>.pdf
// after checking its magic bytes.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, jobID string) (string, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", http.StatusRequestEntityTooLarge, errors.New("upload too large")
		}
		return "", http.StatusBadRequest, errors.New("missing multipart field \"file\"")
	}
	defer file.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	if info := s.detector.DetectBytes(head[:n], header.Filename); info.Kind != filetype.KindPDF {
		return "", http.StatusUnsupportedMediaType, fmt.Errorf("expected a PDF, got %s", info.MIMEType)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", http.StatusInternalServerError, err
	}

	if err := os.MkdirAll(s.deps.UploadDir, 0o755); err != nil {
		return "", http.StatusInternalServerError, err
	}
	dst := filepath.Join(s.deps.UploadDir, jobID+".pdf")
	out, err := os.Create(dst)
	if err != nil {
		return "", http.StatusInternalServerError, err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		os.Remove(dst)
		return "", http.StatusInternalServerError, err
	}
	log.Info().Str("job_id", jobID).Str("file", header.Filename).Msg("upload stored")
	return dst, 0, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, ok, err := s.deps.Status.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "status store unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, ok, err := s.deps.Status.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "status store unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if st.State.Terminal() {
		writeError(w, http.StatusConflict, "job already "+string(st.State))
		return
	}
	if err := s.deps.Queue.Cancel(r.Context(), id); err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	log.Warn().Str("job_id", id).Msg("job cancellation requested")
	writeJSON(w, http.StatusAccepted, submitResp{JobID: id, Status: "cancelling"})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if s.deps.Pages == nil {
		writeError(w, http.StatusNotFound, "page records not kept")
		return
	}
	rec, ok, err := s.deps.Pages.GetPage(r.Context(), vars["id"], page)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "page store unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, name := vars["id"], vars["name"]
	if !safeSegment(id) || !safeSegment(name) || !strings.HasSuffix(name, ".pdf") {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	path := filepath.Join(s.deps.OutputDir, id, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && filepath.Base(s) == s && !strings.ContainsAny(s, `/\`)
}
