package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/streamvault/internal/asset"
	"github.com/your-org/streamvault/internal/auth"
	"github.com/your-org/streamvault/internal/bundle"
	"github.com/your-org/streamvault/internal/ingest"
	"github.com/your-org/streamvault/internal/storage"
	"github.com/your-org/streamvault/internal/stream"
)

// envelope is the uniform response body: success with data, or an error
// object with a machine-readable kind.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string        `json:"kind"`
	Message string        `json:"message"`
	Details []fieldDetail `json:"details,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type pageResponse struct {
	Data       []asset.Asset `json:"data"`
	Pagination pagination    `json:"pagination"`
}

type pagination struct {
	Total       int64 `json:"total"`
	Limit       int64 `json:"limit"`
	Offset      int64 `json:"offset"`
	CurrentPage int64 `json:"current_page"`
	TotalPages  int64 `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

func paginated(page *asset.Page) pageResponse {
	totalPages := (page.Total + page.Limit - 1) / page.Limit
	currentPage := (page.Offset / page.Limit) + 1
	assets := page.Assets
	if assets == nil {
		assets = []asset.Asset{}
	}
	return pageResponse{
		Data: assets,
		Pagination: pagination{
			Total:       page.Total,
			Limit:       page.Limit,
			Offset:      page.Offset,
			CurrentPage: currentPage,
			TotalPages:  totalPages,
			HasNext:     currentPage < totalPages,
			HasPrevious: currentPage > 1,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string, details []fieldDetail) {
	writeJSON(w, status, envelope{
		Success: false,
		Error:   &errorBody{Kind: kind, Message: msg, Details: details},
	})
}

// errorKind extracts the machine-readable kind for an error on any path.
func errorKind(err error) string {
	var verr *bundle.ValidationError
	switch {
	case errors.As(err, &verr):
		return string(verr.Kind)
	case errors.Is(err, storage.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, asset.ErrNotFound):
		return "not_found"
	case errors.Is(err, stream.ErrNotReady):
		return "not_ready"
	case errors.Is(err, stream.ErrFileNotFound):
		return "file_not_found"
	case errors.Is(err, ingest.ErrForbidden):
		return "forbidden"
	default:
		return "storage_io"
	}
}

// writeServiceError maps domain errors to HTTP responses. NotReady, NotFound
// and FileNotFound are ordinary outcomes on the read path, distinguished so a
// client can tell "still processing" from "does not exist".
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *bundle.ValidationError
	switch {
	case errors.As(err, &verr):
		var details []fieldDetail
		if verr.File != "" || verr.Detail != "" {
			details = []fieldDetail{{Field: verr.File, Message: verr.Detail}}
		}
		writeError(w, http.StatusBadRequest, string(verr.Kind), "bundle validation failed", details)
	case errors.Is(err, storage.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_name", "invalid filename", nil)
	case errors.Is(err, asset.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "asset not found", nil)
	case errors.Is(err, stream.ErrNotReady):
		writeError(w, http.StatusConflict, "not_ready", "asset is not ready for streaming", nil)
	case errors.Is(err, stream.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "file_not_found", "file not found in asset", nil)
	case errors.Is(err, ingest.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "access denied", nil)
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage_io", "internal storage error", nil)
	}
}

// ownedAsset loads the path asset and enforces ownership.
func (h *Handler) ownedAsset(r *http.Request) (*asset.Asset, error) {
	a, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if a.OwnerID != auth.UserID(r.Context()) {
		return nil, ingest.ErrForbidden
	}
	return a, nil
}
