package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// projectUpdateHandler applies a project-update event: an optional status
// write onto the project aggregate and an optional manager note.
//
// Status writes are last-write-wins, not idempotency-keyed: a replay
// simply reapplies the same status. Notes are ALWAYS appended and never
// deduplicated; a replayed event appends the note again, tagged with the
// source event id so operators can reconcile. That duplication is the
// caller's responsibility, by contract.
type projectUpdateHandler struct {
	deps HandlerDeps
}

var projectStatusByAlias = map[string]domain.ProjectStatus{
	"active":    domain.ProjectActive,
	"on_hold":   domain.ProjectOnHold,
	"on-hold":   domain.ProjectOnHold,
	"completed": domain.ProjectCompleted,
	"archived":  domain.ProjectArchived,
}

func (h *projectUpdateHandler) Handle(ctx context.Context, ev domain.OfflineEvent) error {
	log := slogx.FromContext(ctx)

	if ev.EntityRef == "" {
		return errors.New("project-update: missing project reference")
	}

	// 1. Apply the status when it maps to an allowed value; unknown
	// strings are dropped, not errors.
	if raw := payloadString(ev.Payload, "status"); raw != "" {
		if status, ok := projectStatusByAlias[normalizeStatus(raw)]; ok {
			err := h.deps.Store.Projects().UpdateProjectStatus(ctx, ev.TenantID, ev.EntityRef, status)
			switch {
			case errors.Is(err, store.ErrNotFound):
				log.Warn("project-update: project not found, skipping status",
					slog.String("project_id", ev.EntityRef),
				)
			case err != nil:
				return fmt.Errorf("project-update: status write: %w", err)
			}
		} else {
			log.Warn("project-update: unrecognized status, skipping",
				slog.String("status", raw),
			)
		}
	}

	// 2. Append the manager note when non-empty.
	if note := payloadString(ev.Payload, "managerNote"); strings.TrimSpace(note) != "" {
		err := h.deps.Store.Notes().CreateNote(ctx, domain.ManagerNote{
			ID:            idx.New().String(),
			TenantID:      ev.TenantID,
			EntityRef:     ev.EntityRef,
			AuthorID:      ev.UserID,
			Body:          note,
			SourceEventID: ev.ID,
		})
		if err != nil {
			return fmt.Errorf("project-update: note append: %w", err)
		}
	}

	return nil
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
