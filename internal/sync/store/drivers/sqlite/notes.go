package sqlite

import (
	"context"

	"github.com/harborworks/fieldsync/internal/sync/domain"
)

type notesRepo struct {
	db dbtx
}

func (r *notesRepo) CreateNote(ctx context.Context, n domain.ManagerNote) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO manager_notes (id, tenant_id, entity_ref, author_id, body, source_event_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.TenantID, n.EntityRef, n.AuthorID, n.Body, n.SourceEventID,
	)
	return err
}

func (r *notesRepo) ListNotesByEntity(ctx context.Context, tenantID, entityRef string) ([]domain.ManagerNote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, entity_ref, author_id, body, source_event_id, created_at
		FROM manager_notes
		WHERE tenant_id = ? AND entity_ref = ?
		ORDER BY created_at ASC, id ASC`,
		tenantID, entityRef,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.ManagerNote
	for rows.Next() {
		var n domain.ManagerNote
		if err := rows.Scan(&n.ID, &n.TenantID, &n.EntityRef, &n.AuthorID, &n.Body, &n.SourceEventID, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
