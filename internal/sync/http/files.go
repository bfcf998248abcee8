package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/pkg/httpx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// FilesHandler streams transient upload blobs back to reviewers. Only
// the offline-uploads namespace is reachable over HTTP; durable document
// and biometric copies are internal.
type FilesHandler struct {
	Store blob.Store
}

func (h *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	blobID := r.PathValue("blobId")

	meta, err := h.Store.Stat(ctx, blob.NamespaceUploads, blobID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "No such file")
			return
		}
		log.Error("file stat failed", "blob_id", blobID, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to read file")
		return
	}

	// Tenant isolation: a blob id from another tenant is indistinguishable
	// from a missing one.
	if meta.TenantID != httpx.TenantIDFromContext(ctx) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "No such file")
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	httpx.NoCache(w)

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	rc, _, err := h.Store.Open(ctx, blob.NamespaceUploads, blobID)
	if err != nil {
		log.Error("file open failed", "blob_id", blobID, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to read file")
		return
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are already out; all we can do is log the broken stream.
		log.Warn("file stream interrupted", "blob_id", blobID, "error", err)
	}
}
