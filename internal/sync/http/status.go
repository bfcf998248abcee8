package http

import (
	"errors"
	"net/http"

	"github.com/harborworks/fieldsync/internal/sync/service"
	"github.com/harborworks/fieldsync/pkg/httpx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// EnrollmentStatusHandler answers the client polling loop with the
// record summary; the template itself never leaves the server.
type EnrollmentStatusHandler struct {
	EnrollmentService *service.EnrollmentService
}

func (h *EnrollmentStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	status, err := h.EnrollmentService.Status(ctx, httpx.TenantIDFromContext(ctx), r.PathValue("userId"))
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "No enrollment record for user")
			return
		}
		log.Error("enrollment status lookup failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to read enrollment status")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, status)
}
