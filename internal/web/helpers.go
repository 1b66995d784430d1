package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/glr76/PlannyWeb/internal/export"
	"github.com/glr76/PlannyWeb/internal/planner"
)

type yearsResponse struct {
	OK            bool  `json:"ok"`
	Years         []int `json:"years"`
	SuggestedPair []int `json:"suggested_pair"`
}

type exportSaveResponse struct {
	OK      bool   `json:"ok"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Matched bool   `json:"matched"`
}

func (h *handler) handleYears(w http.ResponseWriter, r *http.Request) {
	result, err := h.selections.Years(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("listing selection years failed")
		result = planner.YearsResult{Years: []int{}, SuggestedPair: []int{}}
	}
	writeJSON(w, http.StatusOK, yearsResponse{OK: true, Years: result.Years, SuggestedPair: result.SuggestedPair})
}

func (h *handler) handleSelection(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	text, err := h.selections.Get(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	setWriteCache(w, text.CacheHit)
	if !text.Found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = io.WriteString(w, text.Content)
}

func (h *handler) handleCombined(w http.ResponseWriter, r *http.Request) {
	years := planner.ParseYears(r.URL.Query().Get("years"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if len(years) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	text, err := h.selections.Combined(r.Context(), years)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, _ = io.WriteString(w, text)
}

func (h *handler) parseExport(w http.ResponseWriter, r *http.Request) (export.Request, bool) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return export.Request{}, false
	}
	req, err := export.ParseRequest(body, h.now())
	if err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return export.Request{}, false
	}
	return req, true
}

func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseExport(w, r)
	if !ok {
		return
	}
	data, err := export.Render(req.Sheets, h.now())
	if err != nil {
		h.logger.Error().Err(err).Msg("render workbook")
		writeErrorMessage(w, r, exportStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// handleExportSave renders the workbook and stores it through the file
// store under the sanitized filename.
func (h *handler) handleExportSave(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseExport(w, r)
	if !ok {
		return
	}
	data, err := export.Render(req.Sheets, h.now())
	if err != nil {
		h.logger.Error().Err(err).Msg("render workbook")
		writeErrorMessage(w, r, exportStatus(err), err.Error())
		return
	}
	result, err := h.store.PutBytes(r.Context(), req.Filename, data)
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			message = "write_error: " + err.Error()
		}
		writeErrorMessage(w, r, status, message)
		return
	}
	writeJSON(w, http.StatusOK, exportSaveResponse{OK: true, Path: result.Path, Size: result.Size, Matched: result.Matched})
}

func exportStatus(err error) int {
	if errors.Is(err, export.ErrMissingSheets) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
