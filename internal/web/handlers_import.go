package web

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/skuimport/internal/core"
	"github.com/JonMunkholm/skuimport/internal/logging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// startImportResponse is returned with 202 Accepted.
type startImportResponse struct {
	RunID    string `json:"runId"`
	FileName string `json:"fileName"`
	Status   string `json:"status"`
}

// handleStartImport accepts a multipart upload ("file", optional
// "behavior") and starts a background run.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, r, errors.New("file too large"), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, core.ErrNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	var behavior core.Behavior
	if v := r.FormValue("behavior"); v != "" {
		behavior, err = core.ParseBehavior(v)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
	}

	src, err := openSpooled(header.Filename, file, s.cfg.Import.BunchSize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errSpool) {
			status = http.StatusInternalServerError
		}
		respondError(w, r, err, status)
		return
	}

	ctx := core.ContextWithClientIP(r.Context(), r.RemoteAddr)
	runID, err := s.service.StartImport(ctx, core.ImportRequest{
		FileName: header.Filename,
		Behavior: behavior,
		Source:   src,
	})
	if err != nil {
		if cerr := src.Close(); cerr != nil {
			logging.FromContext(r.Context()).Warn("discard upload failed", "error", cerr)
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(r.Context()).Info("import started",
		"run_id", runID,
		"file", header.Filename,
		"size", header.Size,
	)

	w.Header().Set("Location", "/api/imports/"+runID)
	writeJSON(w, http.StatusAccepted, startImportResponse{
		RunID:    runID,
		FileName: header.Filename,
		Status:   string(core.PhaseStarting),
	})
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, r, errors.New("invalid limit"), http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.service.ListHistory(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelRun(runID); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	logging.FromContext(r.Context()).Info("import cancel requested", "run_id", runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": "cancelling"})
}

// errorReportRow is one line of the downloadable error report. Validation
// errors and apply failures share the format.
type errorReportRow struct {
	LineNumber int    `json:"lineNumber"`
	Kind       string `json:"kind"`
	Column     string `json:"column,omitempty"`
	SKU        string `json:"sku,omitempty"`
	Message    string `json:"message"`
}

func errorReport(result core.ImportResult) []errorReportRow {
	out := make([]errorReportRow, 0, len(result.Errors)+len(result.Failures))
	for _, e := range result.Errors {
		out = append(out, errorReportRow{
			LineNumber: e.LineNumber,
			Kind:       string(e.Kind),
			Column:     e.Column,
			Message:    e.Message,
		})
	}
	for _, f := range result.Failures {
		out = append(out, errorReportRow{
			LineNumber: f.LineNumber,
			Kind:       f.Stage,
			SKU:        f.SKU,
			Message:    f.Reason,
		})
	}
	return out
}

// handleImportErrors returns the run's row errors as JSON, or as a CSV
// attachment with ?format=csv.
func (s *Server) handleImportErrors(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	result, err := s.service.GetRun(runID)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	rows := errorReport(result)

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, map[string]any{
			"runId":       runID,
			"invalidRows": result.InvalidRows(),
			"summary":     result.ErrorSummary,
			"skippedRows": result.SkippedRows,
			"errors":      rows,
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="import-`+runID+`-errors.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"line", "kind", "column", "sku", "message"})
	for _, row := range rows {
		_ = cw.Write([]string{
			strconv.Itoa(row.LineNumber), row.Kind, row.Column, row.SKU, row.Message,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("write error report failed", "run_id", runID, "error", err)
	}
}
