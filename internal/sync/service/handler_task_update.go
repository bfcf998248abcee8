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

// taskUpdateHandler normalizes a free-form status string against two
// independent canonical sets (task status and milestone status) and
// applies whichever recognized it; unrecognized strings leave the task
// untouched. It then always appends one manager note. Notes are not
// deduplicated on replay (same contract as project-update).
type taskUpdateHandler struct {
	deps HandlerDeps
}

// Two independent lookup tables. A status string belongs to at most one
// canonical set in practice ("in_progress"/"completed" appear in both and
// update both), and anything else is dropped.
var taskStatusByAlias = map[string]domain.TaskStatus{
	"pending":     domain.TaskPending,
	"todo":        domain.TaskPending,
	"in_progress": domain.TaskInProgress,
	"in-progress": domain.TaskInProgress,
	"completed":   domain.TaskCompleted,
	"blocked":     domain.TaskBlocked,
	"cancelled":   domain.TaskCancelled,
	"canceled":    domain.TaskCancelled,
}

var milestoneStatusByAlias = map[string]domain.MilestoneStatus{
	"not_started": domain.MilestoneNotStarted,
	"not-started": domain.MilestoneNotStarted,
	"in_progress": domain.MilestoneInProgress,
	"in-progress": domain.MilestoneInProgress,
	"completed":   domain.MilestoneCompleted,
}

func (h *taskUpdateHandler) Handle(ctx context.Context, ev domain.OfflineEvent) error {
	log := slogx.FromContext(ctx)

	if ev.EntityRef == "" {
		return errors.New("task-update: missing task reference")
	}

	raw := normalizeStatus(payloadString(ev.Payload, "status"))

	// 1. Task status, only if the normalizer recognizes it.
	if status, ok := taskStatusByAlias[raw]; ok {
		err := h.deps.Store.Tasks().UpdateTaskStatus(ctx, ev.TenantID, ev.EntityRef, status)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Warn("task-update: task not found, skipping status",
				slog.String("task_id", ev.EntityRef),
			)
		case err != nil:
			return fmt.Errorf("task-update: status write: %w", err)
		}
	} else if raw != "" {
		log.Warn("task-update: unrecognized task status, leaving unchanged",
			slog.String("status", raw),
		)
	}

	// 2. Milestone status, independently.
	if status, ok := milestoneStatusByAlias[raw]; ok {
		err := h.deps.Store.Tasks().UpdateMilestoneStatus(ctx, ev.TenantID, ev.EntityRef, status)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Warn("task-update: task not found, skipping milestone",
				slog.String("task_id", ev.EntityRef),
			)
		case err != nil:
			return fmt.Errorf("task-update: milestone write: %w", err)
		}
	}

	// 3. Always append the manager note, even when the status was
	// dropped; the note is the field crew's narrative of the change.
	err := h.deps.Store.Notes().CreateNote(ctx, domain.ManagerNote{
		ID:            idx.New().String(),
		TenantID:      ev.TenantID,
		EntityRef:     ev.EntityRef,
		AuthorID:      ev.UserID,
		Body:          payloadString(ev.Payload, "managerNote"),
		SourceEventID: ev.ID,
	})
	if err != nil {
		return fmt.Errorf("task-update: note append: %w", err)
	}

	return nil
}
