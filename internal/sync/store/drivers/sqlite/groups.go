package sqlite

import (
	"context"

	"github.com/harborworks/fieldsync/internal/sync/domain"
)

type groupsRepo struct {
	db dbtx
}

func (r *groupsRepo) GetGroupByID(ctx context.Context, tenantID, id string) (domain.Group, error) {
	var (
		g       domain.Group
		members string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, member_ids
		FROM groups
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&g.ID, &g.TenantID, &g.Name, &members)
	if err != nil {
		return domain.Group{}, mapNotFound(err)
	}

	if g.MemberIDs, err = unmarshalStrings(members); err != nil {
		return domain.Group{}, err
	}
	return g, nil
}

func (r *groupsRepo) CreateGroup(ctx context.Context, g domain.Group) error {
	members, err := marshalStrings(g.MemberIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO groups (id, tenant_id, name, member_ids)
		VALUES (?, ?, ?, ?)`,
		g.ID, g.TenantID, g.Name, members,
	)
	return err
}
