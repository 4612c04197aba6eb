package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/technoetl/bulkmedia/internal/ingest"
	"github.com/technoetl/bulkmedia/internal/logging"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, max := s.service.LimiterStatus()
	writeJSON(w, map[string]any{
		"status":      "ok",
		"active_runs": active,
		"max_runs":    max,
	})
}

// handleCreateSession opens a new ingestion session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := s.service.CreateSession()
	logging.FromContext(r.Context()).Info("session created", "session_id", id)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"session_id": id})
}

// handleDescriptor parses an uploaded descriptor file (CSV or XLSX) into
// the session. Column names can be overridden with the product_column and
// image_column form fields.
func (s *Server) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFormSize)
	if err := r.ParseMultipartForm(s.cfg.Upload.MaxFormSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read file")
		return
	}

	opts := ingest.DescriptorOptions{
		ProductIDColumn: r.FormValue("product_column"),
		ImageColumn:     r.FormValue("image_column"),
	}

	result, err := s.service.ParseDescriptor(sessionID, header.Filename, data, opts)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("descriptor parsed",
		"session_id", sessionID,
		"file", header.Filename,
		"records", len(result.Records),
		"skipped", result.SkippedRows,
	)

	writeJSON(w, result)
}

// handleAddFiles validates and admits candidate images from a multipart
// form. All parts under the "files" field are considered.
func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFormSize)
	if err := r.ParseMultipartForm(s.cfg.Upload.MaxFormSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "files too large or invalid form")
		return
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		writeError(w, r, http.StatusBadRequest, "no files provided")
		return
	}

	var inputs []ingest.FileInput
	for _, header := range r.MultipartForm.File["files"] {
		part, err := header.Open()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unreadable file part")
			return
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "failed to read file")
			return
		}

		inputs = append(inputs, ingest.FileInput{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	report, err := s.service.AddFiles(sessionID, inputs)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("files admitted",
		"session_id", sessionID,
		"admitted", report.Admitted,
		"rejected", len(report.Rejected),
	)

	writeJSON(w, report)
}

// handleMatch reconciles the session's descriptor against its file pool.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	report, err := s.service.Match(sessionID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("match completed",
		"session_id", sessionID,
		"matched", report.Stats.Matched,
		"unmatched_rows", report.Stats.UnmatchedRows,
		"unmatched_files", report.Stats.UnmatchedFiles,
	)

	writeJSON(w, report)
}

// handleAssignments returns the session's committed assignments.
func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	assignments, err := s.service.Assignments(sessionID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{"assignments": assignments})
}

// handleStartUpload launches the session's upload run in the background.
func (s *Server) handleStartUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.service.StartUpload(r.Context(), sessionID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("upload started", "session_id", sessionID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// handleProgress streams upload progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(sessionID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed, run finished or was cancelled
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// Event IDs are strictly increasing and stable across
			// reconnects, so a client resuming from lastEventId never
			// skips an attempt's terminal event
			id := progressEventID(progress)
			if lastEventIDStr != "" && id <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", id, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// progressEventID derives a stable SSE event ID from a progress event. Each
// attempt emits two events sharing the same Current, so the ID spreads them
// over 2N-1 (uploading) and 2N (terminal).
func progressEventID(p ingest.Progress) int {
	if p.Current <= 0 {
		return 0
	}
	if p.Status == ingest.ProgressUploading {
		return 2*p.Current - 1
	}
	return 2 * p.Current
}

// handleResult returns the final outcome list of the session's upload run.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	outcomes, finished, err := s.service.Result(sessionID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var succeeded, failed int
	for _, o := range outcomes {
		if o.Status == ingest.StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}

	writeJSON(w, map[string]any{
		"finished":  finished,
		"succeeded": succeeded,
		"failed":    failed,
		"outcomes":  outcomes,
	})
}

// handleCancel requests cancellation of an in-progress upload run.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.service.CancelUpload(sessionID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("upload cancelled", "session_id", sessionID)

	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleRecentRuns lists recently recorded upload runs.
func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusNotFound, "run history is not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	runs, err := s.history.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to load run history")
		return
	}

	writeJSON(w, map[string]any{"runs": runs})
}
