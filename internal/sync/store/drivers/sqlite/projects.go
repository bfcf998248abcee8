package sqlite

import (
	"context"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
)

type projectsRepo struct {
	db dbtx
}

func (r *projectsRepo) GetProjectByID(ctx context.Context, tenantID, id string) (domain.Project, error) {
	var (
		p      domain.Project
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, status, created_at, updated_at
		FROM projects
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&p.ID, &p.TenantID, &p.Name, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Project{}, mapNotFound(err)
	}
	p.Status = domain.ProjectStatus(status)
	return p, nil
}

func (r *projectsRepo) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, tenant_id, name, status)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, string(p.Status),
	)
	return err
}

func (r *projectsRepo) UpdateProjectStatus(ctx context.Context, tenantID, id string, status domain.ProjectStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`,
		string(status), tenantID, id,
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
