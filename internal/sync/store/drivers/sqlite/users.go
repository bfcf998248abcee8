package sqlite

import (
	"context"
	"database/sql"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
)

type usersRepo struct {
	db dbtx
}

func (r *usersRepo) GetUserByID(ctx context.Context, tenantID, id string) (domain.User, error) {
	var (
		u       domain.User
		status  string
		updated sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, display_name, biometric_status, template_version, biometric_updated, biometric_photo_ref, created_at, updated_at
		FROM users
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&u.ID, &u.TenantID, &u.DisplayName, &status, &u.TemplateVersion, &updated, &u.BiometricPhotoRef, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.BiometricStatus = domain.RecordStatus(status)
	u.BiometricUpdated = mapNullTimePtr(updated)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, display_name)
		VALUES (?, ?, ?)`,
		u.ID, u.TenantID, u.DisplayName,
	)
	return err
}

func (r *usersRepo) UpdateBiometricSummary(ctx context.Context, tenantID, userID string, s domain.BiometricSummary) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET biometric_status = ?, template_version = ?, biometric_updated = ?, biometric_photo_ref = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`,
		string(s.Status), s.TemplateVersion, s.UpdatedAt, s.PhotoRef, tenantID, userID,
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
