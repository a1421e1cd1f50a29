package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/streamvault/internal/auth"
	"github.com/your-org/streamvault/internal/ingest"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
)

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 && r.ContentLength > h.maxBundleBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "bundle_too_large", "payload too large", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBundleBytes)

	if err := r.ParseMultipartForm(h.formMemBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form", nil)
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if details := validateDetails(title, description, true); len(details) > 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fields", details)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "at least one file part is required",
			[]fieldDetail{{Field: "files", Message: "required"}})
		return
	}

	files := make([]ingest.UploadFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, ingest.UploadFile{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	a, err := h.service.Ingest(r.Context(), ingest.IngestRequest{
		OwnerID:     auth.UserID(r.Context()),
		Title:       title,
		Description: description,
		Files:       files,
	})
	if err != nil {
		h.metrics.ObserveIngest(errorKind(err))
		h.writeServiceError(w, r, err)
		return
	}

	h.metrics.ObserveIngest("ok")
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: a})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	page, err := h.store.List(r.Context(), auth.UserID(r.Context()), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: paginated(page)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAsset(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: a})
}

type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAsset(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	if req.Title == nil && req.Description == nil {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"at least one of title or description must be provided", nil)
		return
	}

	title := a.Title
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		title = strings.TrimSpace(*req.Title)
	}
	description := a.Description
	if req.Description != nil {
		description = strings.TrimSpace(*req.Description)
	}
	if details := validateDetails(title, description, false); len(details) > 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fields", details)
		return
	}

	updated, err := h.store.UpdateDetails(r.Context(), a.ID, title, description)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: updated})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.service.Delete(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		h.metrics.ObserveDeletion(errorKind(err))
		h.writeServiceError(w, r, err)
		return
	}

	h.metrics.ObserveDeletion("ok")
	data := map[string]any{"deleted": true}
	if res.DirErr != nil {
		data["detail"] = "directory cleanup pending"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "filename")

	n, err := h.streams.ServeFile(w, r, id, filename)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.metrics.AddStreamBytes(n)
}

func (h *Handler) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAsset(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if a.ThumbnailPath == nil || h.mirror == nil {
		writeError(w, http.StatusNotFound, "file_not_found", "thumbnail not available", nil)
		return
	}

	obj, err := h.mirror.Get(r.Context(), *a.ThumbnailPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "file_not_found", "thumbnail not found", nil)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warn("thumbnail write failed", zap.String("asset_id", a.ID), zap.Error(err))
	}
}

func validateDetails(title, description string, requireTitle bool) []fieldDetail {
	var details []fieldDetail
	if requireTitle && title == "" {
		details = append(details, fieldDetail{Field: "title", Message: "required"})
	}
	if len(title) > maxTitleLen {
		details = append(details, fieldDetail{Field: "title", Message: "must be at most 200 characters"})
	}
	if len(description) > maxDescriptionLen {
		details = append(details, fieldDetail{Field: "description", Message: "must be at most 1000 characters"})
	}
	return details
}

func queryInt(r *http.Request, key string, fallback int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
