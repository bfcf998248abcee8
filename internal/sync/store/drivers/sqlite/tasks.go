package sqlite

import (
	"context"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
)

type tasksRepo struct {
	db dbtx
}

func (r *tasksRepo) GetTaskByID(ctx context.Context, tenantID, id string) (domain.Task, error) {
	var (
		t         domain.Task
		status    string
		milestone string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, project_id, title, status, milestone_status, created_at, updated_at
		FROM tasks
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Title, &status, &milestone, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Task{}, mapNotFound(err)
	}
	t.Status = domain.TaskStatus(status)
	t.MilestoneStatus = domain.MilestoneStatus(milestone)
	return t, nil
}

func (r *tasksRepo) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, tenant_id, project_id, title, status, milestone_status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.ProjectID, t.Title, string(t.Status), string(t.MilestoneStatus),
	)
	return err
}

func (r *tasksRepo) UpdateTaskStatus(ctx context.Context, tenantID, id string, status domain.TaskStatus) error {
	return r.updateTask(ctx, `
		UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`,
		string(status), tenantID, id,
	)
}

func (r *tasksRepo) UpdateMilestoneStatus(ctx context.Context, tenantID, id string, status domain.MilestoneStatus) error {
	return r.updateTask(ctx, `
		UPDATE tasks SET milestone_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`,
		string(status), tenantID, id,
	)
}

func (r *tasksRepo) updateTask(ctx context.Context, query string, args ...any) error {
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

func (r *tasksRepo) AddAttachment(ctx context.Context, a domain.TaskAttachment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_attachments (id, tenant_id, task_id, blob_id, filename, content_type, size, source_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.TaskID, a.BlobID, a.Filename, a.ContentType, a.Size, a.SourceEventID,
	)
	return err
}

func (r *tasksRepo) ListAttachments(ctx context.Context, tenantID, taskID string) ([]domain.TaskAttachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, task_id, blob_id, filename, content_type, size, source_event_id, created_at
		FROM task_attachments
		WHERE tenant_id = ? AND task_id = ?
		ORDER BY created_at ASC, id ASC`,
		tenantID, taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []domain.TaskAttachment
	for rows.Next() {
		var a domain.TaskAttachment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.TaskID, &a.BlobID, &a.Filename, &a.ContentType, &a.Size, &a.SourceEventID, &a.CreatedAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (r *tasksRepo) AddDurationLog(ctx context.Context, d domain.DurationLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO duration_logs (id, tenant_id, task_id, user_id, minutes, note, source_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.TaskID, d.UserID, d.Minutes, d.Note, d.SourceEventID,
	)
	return err
}

func (r *tasksRepo) ListDurationLogs(ctx context.Context, tenantID, taskID string) ([]domain.DurationLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, task_id, user_id, minutes, note, source_event_id, created_at
		FROM duration_logs
		WHERE tenant_id = ? AND task_id = ?
		ORDER BY created_at ASC, id ASC`,
		tenantID, taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.DurationLog
	for rows.Next() {
		var d domain.DurationLog
		if err := rows.Scan(&d.ID, &d.TenantID, &d.TaskID, &d.UserID, &d.Minutes, &d.Note, &d.SourceEventID, &d.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, d)
	}
	return logs, rows.Err()
}
