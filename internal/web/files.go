package web

import (
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/glr76/PlannyWeb/internal/store"
)

type textResponse struct {
	OK   bool   `json:"ok"`
	Name string `json:"name"`
	Text string `json:"text"`
}

type textPutResponse struct {
	OK        bool   `json:"ok"`
	Name      string `json:"name"`
	Branch    string `json:"branch,omitempty"`
	CommitSHA string `json:"commit_sha"`
	Size      int    `json:"size"`
	Echo      string `json:"echo"`
	SHAIn     string `json:"sha_in"`
	SHAEcho   string `json:"sha_echo"`
	Matched   bool   `json:"matched"`
	Attempts  int    `json:"attempts"`
}

type legacyPutResponse struct {
	OK        bool   `json:"ok"`
	Path      string `json:"path"`
	Branch    string `json:"branch,omitempty"`
	CommitSHA string `json:"commit_sha"`
	Size      int    `json:"size"`
	SHAIn     string `json:"sha_in"`
	SHAEcho   string `json:"sha_echo"`
	Matched   bool   `json:"matched"`
}

type listedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Type string `json:"type"`
}

type listResponse struct {
	OK     bool         `json:"ok"`
	Source string       `json:"source"`
	Branch string       `json:"branch,omitempty"`
	Prefix string       `json:"prefix"`
	Count  int          `json:"count"`
	Files  []listedFile `json:"files"`
}

type brancher interface {
	Branch() string
}

func (h *handler) branch() string {
	if b, ok := h.store.Backend().(brancher); ok {
		return b.Branch()
	}
	return ""
}

func (h *handler) handleTextGet(w http.ResponseWriter, r *http.Request) {
	text, err := h.store.Lookup(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(text.Content))
	setWriteCache(w, text.CacheHit)
	if !text.Found {
		writeJSON(w, http.StatusNotFound, textResponse{OK: false, Name: text.Path, Text: ""})
		return
	}
	writeJSON(w, http.StatusOK, textResponse{OK: true, Name: text.Path, Text: text.Content})
}

func (h *handler) handleTextPut(w http.ResponseWriter, r *http.Request) {
	result, ok := h.put(w, r)
	if !ok {
		return
	}
	w.Header().Set("ETag", etag(result.Echo))
	setWriteCache(w, result.Cached)
	writeJSON(w, http.StatusOK, textPutResponse{
		OK:        true,
		Name:      result.Path,
		Branch:    h.branch(),
		CommitSHA: result.Revision,
		Size:      result.Size,
		Echo:      result.Echo,
		SHAIn:     result.SHAIn,
		SHAEcho:   result.SHAEcho,
		Matched:   result.Matched,
		Attempts:  result.Attempts,
	})
}

func (h *handler) handleLegacyGet(w http.ResponseWriter, r *http.Request) {
	text, err := h.store.Lookup(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !text.Found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("ETag", etag(text.Content))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(text.Path)))
	setWriteCache(w, text.CacheHit)
	_, _ = io.WriteString(w, text.Content)
}

func (h *handler) handleLegacyPut(w http.ResponseWriter, r *http.Request) {
	result, ok := h.put(w, r)
	if !ok {
		return
	}
	w.Header().Set("ETag", etag(result.Echo))
	setWriteCache(w, result.Cached)
	writeJSON(w, http.StatusOK, legacyPutResponse{
		OK:        true,
		Path:      result.Path,
		Branch:    h.branch(),
		CommitSHA: result.Revision,
		Size:      result.Size,
		SHAIn:     result.SHAIn,
		SHAEcho:   result.SHAEcho,
		Matched:   result.Matched,
	})
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) (store.CommitResult, bool) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return store.CommitResult{}, false
	}
	result, err := h.store.PutBytes(r.Context(), r.PathValue("name"), body)
	if err != nil {
		if status, _ := statusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("path", r.PathValue("name")).Msg("write failed")
		}
		writeError(w, r, err)
		return store.CommitResult{}, false
	}
	if !result.Matched {
		h.logger.Warn().Str("path", result.Path).Int("attempts", result.Attempts).Msg("write acknowledged but not yet visible")
	}
	return result, true
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		if store.IsInvalidPath(err) {
			writeError(w, r, err)
			return
		}
		h.logger.Error().Err(err).Msg("list failed")
		writeErrorMessage(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]listedFile, 0, len(files))
	for _, f := range files {
		out = append(out, listedFile{Name: f.Name, Path: f.Path, SHA: f.Revision, Type: "file"})
	}
	writeJSON(w, http.StatusOK, listResponse{
		OK:     true,
		Source: h.store.Backend().Name(),
		Branch: h.branch(),
		Prefix: h.store.Prefix(),
		Count:  len(out),
		Files:  out,
	})
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
}

func etag(content string) string {
	return `W/"` + store.SHA256Hex([]byte(content)) + `"`
}
