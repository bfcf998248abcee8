package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// activityLogHandler attaches every uploaded file of the event to the
// referenced task and appends exactly one duration-log entry. N files in
// one event produce N attachment rows and one duration row, all pointing
// back at the same source event id.
type activityLogHandler struct {
	deps HandlerDeps
}

func (h *activityLogHandler) Handle(ctx context.Context, ev domain.OfflineEvent) error {
	log := slogx.FromContext(ctx)

	if ev.EntityRef == "" {
		return errors.New("activity-log: missing task reference")
	}

	// 1. The task must exist before we attach anything to it.
	if _, err := h.deps.Store.Tasks().GetTaskByID(ctx, ev.TenantID, ev.EntityRef); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("activity-log: task not found, skipping",
				slog.String("task_id", ev.EntityRef),
			)
			return nil
		}
		return fmt.Errorf("activity-log: task lookup: %w", err)
	}

	// 2. One attachment row per uploaded file.
	for _, f := range ev.UploadedFiles {
		err := h.deps.Store.Tasks().AddAttachment(ctx, domain.TaskAttachment{
			ID:            idx.New().String(),
			TenantID:      ev.TenantID,
			TaskID:        ev.EntityRef,
			BlobID:        f.BlobID,
			Filename:      f.Filename,
			ContentType:   f.ContentType,
			Size:          f.Size,
			SourceEventID: ev.ID,
		})
		if err != nil {
			return fmt.Errorf("activity-log: attach %q: %w", f.Filename, err)
		}
	}

	// 3. Exactly one duration-log entry regardless of file count.
	err := h.deps.Store.Tasks().AddDurationLog(ctx, domain.DurationLog{
		ID:            idx.New().String(),
		TenantID:      ev.TenantID,
		TaskID:        ev.EntityRef,
		UserID:        ev.UserID,
		Minutes:       payloadInt64(ev.Payload, "durationMinutes"),
		Note:          payloadString(ev.Payload, "note"),
		SourceEventID: ev.ID,
	})
	if err != nil {
		return fmt.Errorf("activity-log: duration log: %w", err)
	}

	return nil
}
