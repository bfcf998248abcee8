package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// biometricEnrollHandler upserts one EnrollmentRequest keyed by
// (tenant, source event id). This is the one handler that is fully
// idempotent under replay by construction: re-delivering the same client
// event updates the existing request instead of duplicating it.
//
// The idempotency key is the client's own event id carried in the
// payload ("sourceEventId"); offline clients assign it when the event is
// queued, so it survives replays that the server-assigned row id cannot.
// Events without one fall back to the server event id, which degrades to
// at-least-once semantics for clients that never replay.
type biometricEnrollHandler struct {
	deps HandlerDeps
}

func (h *biometricEnrollHandler) Handle(ctx context.Context, ev domain.OfflineEvent) error {
	log := slogx.FromContext(ctx)

	targetUserID := payloadString(ev.Payload, "targetUserId")
	if targetUserID == "" {
		return errors.New("biometric-enroll: missing targetUserId")
	}

	sourceEventID := payloadString(ev.Payload, "sourceEventId")
	if sourceEventID == "" {
		sourceEventID = ev.ID
	}

	id, err := h.deps.Store.EnrollmentRequests().UpsertBySourceEvent(ctx, domain.EnrollmentRequest{
		ID:                idx.New().String(),
		TenantID:          ev.TenantID,
		SourceEventID:     sourceEventID,
		TargetUserID:      targetUserID,
		PerformedByUserID: ev.UserID,
		GroupID:           payloadString(ev.Payload, "groupId"),
		UploadedFiles:     ev.UploadedFiles,
		Status:            domain.RequestPending,
	})
	if err != nil {
		return fmt.Errorf("biometric-enroll: upsert request: %w", err)
	}

	log.Info("enrollment request upserted",
		slog.String("request_id", id),
		slog.String("target_user_id", targetUserID),
		slog.String("source_event_id", sourceEventID),
	)
	return nil
}
