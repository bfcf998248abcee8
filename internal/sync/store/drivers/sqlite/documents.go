package sqlite

import (
	"context"

	"github.com/harborworks/fieldsync/internal/sync/domain"
)

type documentsRepo struct {
	db dbtx
}

func (r *documentsRepo) CreateDocument(ctx context.Context, d domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, project_id, target_user_id, blob_id, filename, content_type, size, source_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.ProjectID, d.TargetUserID, d.BlobID,
		d.Filename, d.ContentType, d.Size, d.SourceEventID,
	)
	return err
}

func (r *documentsRepo) ListDocumentsByProject(ctx context.Context, tenantID, projectID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, project_id, target_user_id, blob_id, filename, content_type, size, source_event_id, created_at
		FROM documents
		WHERE tenant_id = ? AND project_id = ?
		ORDER BY created_at ASC, id ASC`,
		tenantID, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.TenantID, &d.ProjectID, &d.TargetUserID, &d.BlobID, &d.Filename, &d.ContentType, &d.Size, &d.SourceEventID, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
