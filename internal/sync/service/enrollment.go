package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

var (
	ErrRequestNotFound  = errors.New("enrollment request not found")
	ErrRecordNotFound   = errors.New("enrollment record not found")
	ErrInvalidStatus    = errors.New("invalid status filter")
	ErrMissingReason    = errors.New("reject reason is required")
	maxRequestListLimit = 200
)

// EnrollmentService owns the request review workflow: listing pending
// captures, approving them into durable EnrollmentRecords, rejecting
// them, and answering status polls.
type EnrollmentService struct {
	Store store.Store
	Blobs blob.Store
}

// ReviewResult reports the request's state after an approve/reject call.
// AlreadyFinal is set when the request had reached a terminal state
// before this call; retrying review actions is safe and not an error.
type ReviewResult struct {
	RequestID    string
	Status       domain.RequestStatus
	AlreadyFinal bool
}

// ListRequests returns the tenant's requests, defaulting to pending.
func (s *EnrollmentService) ListRequests(ctx context.Context, tenantID string, status domain.RequestStatus, targetUserID string, limit int) ([]domain.EnrollmentRequest, error) {
	switch status {
	case "", domain.RequestPending:
		status = domain.RequestPending
	case domain.RequestApproved, domain.RequestRejected, "all":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if limit > maxRequestListLimit {
		limit = maxRequestListLimit
	}
	return s.Store.EnrollmentRequests().ListRequests(ctx, tenantID, status, targetUserID, limit)
}

// GetRequest fetches one request within the tenant.
func (s *EnrollmentService) GetRequest(ctx context.Context, tenantID, id string) (domain.EnrollmentRequest, error) {
	req, err := s.Store.EnrollmentRequests().GetRequestByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.EnrollmentRequest{}, ErrRequestNotFound
		}
		return domain.EnrollmentRequest{}, err
	}
	return req, nil
}

// Approve transitions a pending request to approved and materializes the
// durable EnrollmentRecord for the target user. Re-invoking on a
// non-pending request is a no-op reporting the existing terminal status.
func (s *EnrollmentService) Approve(ctx context.Context, tenantID, requestID, approverID string) (ReviewResult, error) {
	log := slogx.FromContext(ctx)

	// 1. Load and short-circuit on terminal states.
	req, err := s.GetRequest(ctx, tenantID, requestID)
	if err != nil {
		return ReviewResult{}, err
	}
	if req.Terminal() {
		return ReviewResult{RequestID: req.ID, Status: req.Status, AlreadyFinal: true}, nil
	}

	// 2. Promote the captured photos into the durable biometrics
	// namespace before touching any row. On failure nothing has changed
	// and the caller can retry; on a later failure the orphaned copies
	// are harmless.
	photoRefs := make([]string, 0, len(req.UploadedFiles))
	for _, f := range req.UploadedFiles {
		newID, err := s.Blobs.Copy(ctx, blob.NamespaceUploads, f.BlobID, blob.NamespaceBiometrics, blob.Metadata{
			TenantID:         tenantID,
			UploaderID:       req.PerformedByUserID,
			OriginalFilename: f.Filename,
			ContentType:      f.ContentType,
			Kind:             "biometric-photo",
			CreatedAt:        time.Now().UTC(),
		})
		if err != nil {
			return ReviewResult{}, fmt.Errorf("promote capture %q: %w", f.Filename, err)
		}
		photoRefs = append(photoRefs, newID)
	}

	now := time.Now().UTC()

	// 3. Flip the request and upsert the record atomically.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.EnrollmentRequests().MarkRequestApproved(ctx, tenantID, requestID, approverID); err != nil {
			return err
		}

		_, err := tx.EnrollmentRecords().UpsertPendingForUser(ctx, domain.EnrollmentRecord{
			ID:              idx.New().String(),
			TenantID:        tenantID,
			UserID:          req.TargetUserID,
			Status:          domain.RecordPending,
			PhotoRefs:       photoRefs,
			SourceRequestID: req.ID,
			ApprovedBy:      approverID,
			ApprovedAt:      &now,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost a race with a concurrent reviewer: re-read and report
			// the terminal state idempotently.
			current, rerr := s.GetRequest(ctx, tenantID, requestID)
			if rerr != nil {
				return ReviewResult{}, rerr
			}
			return ReviewResult{RequestID: current.ID, Status: current.Status, AlreadyFinal: true}, nil
		}
		return ReviewResult{}, fmt.Errorf("approve request: %w", err)
	}

	// 4. Refresh the target user's denormalized summary. The record is
	// authoritative, so a missing user row is logged and skipped.
	s.refreshUserSummary(ctx, tenantID, req.TargetUserID, domain.BiometricSummary{
		Status:    domain.RecordPending,
		UpdatedAt: now,
		PhotoRef:  firstRef(photoRefs),
	})

	log.Info("enrollment request approved",
		slog.String("request_id", req.ID),
		slog.String("target_user_id", req.TargetUserID),
		slog.Int("photos", len(photoRefs)),
	)
	return ReviewResult{RequestID: req.ID, Status: domain.RequestApproved}, nil
}

// Reject transitions a pending request to rejected. No EnrollmentRecord
// side effect. Same retry-safe semantics as Approve.
func (s *EnrollmentService) Reject(ctx context.Context, tenantID, requestID, actorID, reason string) (ReviewResult, error) {
	if reason == "" {
		return ReviewResult{}, ErrMissingReason
	}

	req, err := s.GetRequest(ctx, tenantID, requestID)
	if err != nil {
		return ReviewResult{}, err
	}
	if req.Terminal() {
		return ReviewResult{RequestID: req.ID, Status: req.Status, AlreadyFinal: true}, nil
	}

	err = s.Store.EnrollmentRequests().MarkRequestRejected(ctx, tenantID, requestID, actorID, reason)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			current, rerr := s.GetRequest(ctx, tenantID, requestID)
			if rerr != nil {
				return ReviewResult{}, rerr
			}
			return ReviewResult{RequestID: current.ID, Status: current.Status, AlreadyFinal: true}, nil
		}
		return ReviewResult{}, fmt.Errorf("reject request: %w", err)
	}

	return ReviewResult{RequestID: req.ID, Status: domain.RequestRejected}, nil
}

// EnrollmentStatus is the polling view of a user's record. The template
// itself is never exposed.
type EnrollmentStatus struct {
	UserID          string               `json:"userId"`
	Status          domain.RecordStatus  `json:"status"`
	TemplateVersion string               `json:"templateVersion,omitempty"`
	PhotoCount      int                  `json:"photoCount"`
	ApprovedAt      *time.Time           `json:"approvedAt,omitempty"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// Status returns the latest record summary for a user.
func (s *EnrollmentService) Status(ctx context.Context, tenantID, userID string) (EnrollmentStatus, error) {
	rec, err := s.Store.EnrollmentRecords().GetRecordByUserID(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EnrollmentStatus{}, ErrRecordNotFound
		}
		return EnrollmentStatus{}, err
	}
	return EnrollmentStatus{
		UserID:          rec.UserID,
		Status:          rec.Status,
		TemplateVersion: rec.TemplateVersion,
		PhotoCount:      len(rec.PhotoRefs),
		ApprovedAt:      rec.ApprovedAt,
		UpdatedAt:       rec.UpdatedAt,
	}, nil
}

// refreshUserSummary best-effort updates the cached summary on the user
// row; the enrollment record stays the source of truth.
func (s *EnrollmentService) refreshUserSummary(ctx context.Context, tenantID, userID string, summary domain.BiometricSummary) {
	log := slogx.FromContext(ctx)
	err := s.Store.Users().UpdateBiometricSummary(ctx, tenantID, userID, summary)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("user row missing, biometric summary not cached",
			slog.String("user_id", userID),
		)
	case err != nil:
		log.Error("biometric summary refresh failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

func firstRef(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	return refs[0]
}
