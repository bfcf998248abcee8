package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
)

type enrollmentRecordsRepo struct {
	db dbtx
}

// UpsertPendingForUser resets the one record per (tenant_id, user_id)
// back to pending regardless of its previous state: approval of a new
// capture supersedes whatever was there, and clearing the template keeps
// the status/template invariant intact.
func (r *enrollmentRecordsRepo) UpsertPendingForUser(ctx context.Context, rec domain.EnrollmentRecord) (string, error) {
	photos, err := marshalStrings(rec.PhotoRefs)
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO enrollment_records
			(id, tenant_id, user_id, status, template_version, template, photo_refs, source_request_id, approved_by, approved_at)
		VALUES (?, ?, ?, 'pending', '', NULL, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			status            = 'pending',
			template_version  = '',
			template          = NULL,
			photo_refs        = excluded.photo_refs,
			source_request_id = excluded.source_request_id,
			approved_by       = excluded.approved_by,
			approved_at       = excluded.approved_at,
			updated_at        = CURRENT_TIMESTAMP
		RETURNING id`,
		rec.ID, rec.TenantID, rec.UserID, photos, rec.SourceRequestID,
		rec.ApprovedBy, mapOptionalTime(rec.ApprovedAt),
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *enrollmentRecordsRepo) GetRecordByUserID(ctx context.Context, tenantID, userID string) (domain.EnrollmentRecord, error) {
	row := r.db.QueryRowContext(ctx, recordSelectColumns+`
		WHERE tenant_id = ? AND user_id = ?`,
		tenantID, userID,
	)
	return scanRecord(row)
}

func (r *enrollmentRecordsRepo) ListPendingWithPhotos(ctx context.Context, limit int) ([]domain.EnrollmentRecord, error) {
	if limit <= 0 {
		limit = 16
	}

	rows, err := r.db.QueryContext(ctx, recordSelectColumns+`
		WHERE status = 'pending' AND photo_refs != '[]'
		ORDER BY updated_at ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

// MarkEnrolled is the conditional pending -> enrolled transition. The
// status guard means a tick that double-picked a record can only waste a
// template computation, never clobber an enrolled row.
func (r *enrollmentRecordsRepo) MarkEnrolled(ctx context.Context, tenantID, id string, template []byte, version string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollment_records
		SET status = 'enrolled', template = ?, template_version = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = 'pending'`,
		template, version, time.Now().UTC(), tenantID, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *enrollmentRecordsRepo) ListEnrolled(ctx context.Context, tenantID string) ([]domain.EnrollmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, recordSelectColumns+`
		WHERE tenant_id = ? AND status = 'enrolled'
		ORDER BY user_id ASC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

const recordSelectColumns = `
	SELECT id, tenant_id, user_id, status, template_version, template, photo_refs,
	       source_request_id, approved_by, approved_at, created_at, updated_at
	FROM enrollment_records`

func collectRecords(rows *sql.Rows) ([]domain.EnrollmentRecord, error) {
	var records []domain.EnrollmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row rowScanner) (domain.EnrollmentRecord, error) {
	var (
		rec        domain.EnrollmentRecord
		status     string
		template   []byte
		photos     string
		approvedAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.UserID, &status, &rec.TemplateVersion,
		&template, &photos, &rec.SourceRequestID, &rec.ApprovedBy,
		&approvedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.EnrollmentRecord{}, mapNotFound(err)
	}

	rec.Status = domain.RecordStatus(status)
	rec.Template = template
	rec.ApprovedAt = mapNullTimePtr(approvedAt)

	if rec.PhotoRefs, err = unmarshalStrings(photos); err != nil {
		return domain.EnrollmentRecord{}, err
	}
	return rec, nil
}
