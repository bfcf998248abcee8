package http

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/harborworks/fieldsync/internal/sync/service"
	"github.com/harborworks/fieldsync/pkg/httpx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// IdentifyHandler handles POST /v1/biometric-identify: a multipart body
// with one "photo" part and an optional "groupId" field.
type IdentifyHandler struct {
	IdentifyService *service.IdentifyService
}

func (h *IdentifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Expected multipart/form-data")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Malformed multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, _, err := r.FormFile("photo")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "A photo part is required")
		return
	}
	defer f.Close()

	probe, err := io.ReadAll(f)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Unreadable photo part")
		return
	}

	res, err := h.IdentifyService.Identify(ctx, httpx.TenantIDFromContext(ctx), probe, r.FormValue("groupId"))
	if err != nil {
		if errors.Is(err, service.ErrNoProbeImage) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Empty photo part")
			return
		}
		log.Error("identification failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Identification failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}
