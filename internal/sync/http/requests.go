package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/service"
	"github.com/harborworks/fieldsync/pkg/httpx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// RequestsHandler handles the enrollment-request review endpoints.
type RequestsHandler struct {
	EnrollmentService *service.EnrollmentService
}

type reviewResponse struct {
	RequestID    string `json:"requestId"`
	Status       string `json:"status"`
	AlreadyFinal bool   `json:"alreadyFinal,omitempty"`
}

// requestView is the read shape for review endpoints. The tenant id is
// implied by the caller's token and never echoed back.
type requestView struct {
	ID                string                `json:"id"`
	SourceEventID     string                `json:"sourceEventId"`
	TargetUserID      string                `json:"targetUserId"`
	PerformedByUserID string                `json:"performedByUserId"`
	GroupID           string                `json:"groupId,omitempty"`
	UploadedFiles     []domain.UploadedFile `json:"uploadedFiles"`
	Status            string                `json:"status"`
	ApprovedBy        string                `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time            `json:"approvedAt,omitempty"`
	RejectedBy        string                `json:"rejectedBy,omitempty"`
	RejectedAt        *time.Time            `json:"rejectedAt,omitempty"`
	RejectReason      string                `json:"rejectReason,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

func newRequestView(req domain.EnrollmentRequest) requestView {
	files := req.UploadedFiles
	if files == nil {
		files = []domain.UploadedFile{}
	}
	return requestView{
		ID:                req.ID,
		SourceEventID:     req.SourceEventID,
		TargetUserID:      req.TargetUserID,
		PerformedByUserID: req.PerformedByUserID,
		GroupID:           req.GroupID,
		UploadedFiles:     files,
		Status:            string(req.Status),
		ApprovedBy:        req.ApprovedBy,
		ApprovedAt:        req.ApprovedAt,
		RejectedBy:        req.RejectedBy,
		RejectedAt:        req.RejectedAt,
		RejectReason:      req.RejectReason,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
}

// HandleList handles GET /v1/biometric-requests. Query: status
// (pending|approved|rejected|all, default pending), targetUserId, limit.
func (h *RequestsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	requests, err := h.EnrollmentService.ListRequests(ctx,
		httpx.TenantIDFromContext(ctx),
		domain.RequestStatus(q.Get("status")),
		q.Get("targetUserId"),
		limit,
	)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Unknown status filter")
			return
		}
		log.Error("request listing failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to list requests")
		return
	}

	views := make([]requestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, newRequestView(req))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"requests": views})
}

// HandleGet handles GET /v1/biometric-requests/{id}.
func (h *RequestsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	req, err := h.EnrollmentService.GetRequest(ctx, httpx.TenantIDFromContext(ctx), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "No such request")
			return
		}
		log.Error("request fetch failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to fetch request")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newRequestView(req))
}

// HandleApprove handles POST /v1/biometric-requests/{id}/approve.
// Retrying against an already-reviewed request succeeds and reports the
// existing terminal status.
func (h *RequestsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	res, err := h.EnrollmentService.Approve(ctx,
		httpx.TenantIDFromContext(ctx),
		r.PathValue("id"),
		httpx.ActorIDFromContext(ctx),
	)
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "No such request")
			return
		}
		log.Error("approve failed", "request_id", r.PathValue("id"), "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to approve request")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, reviewResponse{
		RequestID:    res.RequestID,
		Status:       string(res.Status),
		AlreadyFinal: res.AlreadyFinal,
	})
}

// HandleReject handles POST /v1/biometric-requests/{id}/reject.
func (h *RequestsHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
		return
	}

	res, err := h.EnrollmentService.Reject(ctx,
		httpx.TenantIDFromContext(ctx),
		r.PathValue("id"),
		httpx.ActorIDFromContext(ctx),
		body.Reason,
	)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingReason):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "A reject reason is required")
		case errors.Is(err, service.ErrRequestNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "No such request")
		default:
			log.Error("reject failed", "request_id", r.PathValue("id"), "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to reject request")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, reviewResponse{
		RequestID:    res.RequestID,
		Status:       string(res.Status),
		AlreadyFinal: res.AlreadyFinal,
	})
}
