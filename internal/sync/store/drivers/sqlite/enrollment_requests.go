package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
)

const defaultRequestListLimit = 50

type enrollmentRequestsRepo struct {
	db dbtx
}

// UpsertBySourceEvent relies on the UNIQUE (tenant_id, source_event_id)
// constraint. On conflict the capture fields are refreshed only while the
// row is still pending; terminal rows just get their updated_at bumped so
// the RETURNING clause always yields the surviving id.
func (r *enrollmentRequestsRepo) UpsertBySourceEvent(ctx context.Context, req domain.EnrollmentRequest) (string, error) {
	files, err := marshalFiles(req.UploadedFiles)
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO enrollment_requests
			(id, tenant_id, source_event_id, target_user_id, performed_by_user_id, group_id, uploaded_files, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending')
		ON CONFLICT (tenant_id, source_event_id) DO UPDATE SET
			target_user_id       = CASE WHEN enrollment_requests.status = 'pending' THEN excluded.target_user_id       ELSE enrollment_requests.target_user_id       END,
			performed_by_user_id = CASE WHEN enrollment_requests.status = 'pending' THEN excluded.performed_by_user_id ELSE enrollment_requests.performed_by_user_id END,
			group_id             = CASE WHEN enrollment_requests.status = 'pending' THEN excluded.group_id             ELSE enrollment_requests.group_id             END,
			uploaded_files       = CASE WHEN enrollment_requests.status = 'pending' THEN excluded.uploaded_files       ELSE enrollment_requests.uploaded_files       END,
			updated_at           = CURRENT_TIMESTAMP
		RETURNING id`,
		req.ID, req.TenantID, req.SourceEventID, req.TargetUserID,
		req.PerformedByUserID, req.GroupID, files,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *enrollmentRequestsRepo) GetRequestByID(ctx context.Context, tenantID, id string) (domain.EnrollmentRequest, error) {
	row := r.db.QueryRowContext(ctx, requestSelectColumns+`
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	)
	return scanRequest(row)
}

func (r *enrollmentRequestsRepo) ListRequests(ctx context.Context, tenantID string, status domain.RequestStatus, targetUserID string, limit int) ([]domain.EnrollmentRequest, error) {
	if limit <= 0 {
		limit = defaultRequestListLimit
	}

	query := requestSelectColumns + ` WHERE tenant_id = ?`
	args := []any{tenantID}

	if status != "" && status != "all" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if targetUserID != "" {
		query += ` AND target_user_id = ?`
		args = append(args, targetUserID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.EnrollmentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *enrollmentRequestsRepo) MarkRequestApproved(ctx context.Context, tenantID, id, approvedBy string) error {
	return r.transition(ctx, `
		UPDATE enrollment_requests
		SET status = 'approved', approved_by = ?, approved_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ? AND status = 'pending'`,
		approvedBy, time.Now().UTC(), tenantID, id,
	)
}

func (r *enrollmentRequestsRepo) MarkRequestRejected(ctx context.Context, tenantID, id, rejectedBy, reason string) error {
	return r.transition(ctx, `
		UPDATE enrollment_requests
		SET status = 'rejected', rejected_by = ?, rejected_at = ?, reject_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ? AND status = 'pending'`,
		rejectedBy, time.Now().UTC(), reason, tenantID, id,
	)
}

// transition runs a conditional state change and maps "no row moved" to
// ErrNotFound so callers can distinguish a lost race from success.
func (r *enrollmentRequestsRepo) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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

const requestSelectColumns = `
	SELECT id, tenant_id, source_event_id, target_user_id, performed_by_user_id, group_id,
	       uploaded_files, status, approved_by, approved_at, rejected_by, rejected_at,
	       reject_reason, created_at, updated_at
	FROM enrollment_requests`

func scanRequest(row rowScanner) (domain.EnrollmentRequest, error) {
	var (
		req        domain.EnrollmentRequest
		files      string
		status     string
		approvedAt sql.NullTime
		rejectedAt sql.NullTime
	)
	err := row.Scan(
		&req.ID, &req.TenantID, &req.SourceEventID, &req.TargetUserID,
		&req.PerformedByUserID, &req.GroupID, &files, &status,
		&req.ApprovedBy, &approvedAt, &req.RejectedBy, &rejectedAt,
		&req.RejectReason, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return domain.EnrollmentRequest{}, mapNotFound(err)
	}

	req.Status = domain.RequestStatus(status)
	req.ApprovedAt = mapNullTimePtr(approvedAt)
	req.RejectedAt = mapNullTimePtr(rejectedAt)

	if req.UploadedFiles, err = unmarshalFiles(files); err != nil {
		return domain.EnrollmentRequest{}, err
	}
	return req, nil
}
