package repository

import (
	"context"
)

// TaskAccess holds the task columns that decide who may see a task.
type TaskAccess struct {
	UUID         string
	CreatorUUID  string
	AssigneeUUID *string
	FamilyUUID   *string
}

// TaskRepository is the narrow view of the task table this service needs.
// Task CRUD lives elsewhere.
type TaskRepository interface {
	FindAccess(ctx context.Context, taskUUID string) (*TaskAccess, error)
	// DetachFamily clears family_uuid on every task shared with the family.
	DetachFamily(ctx context.Context, familyUUID string) (int64, error)
}

type pgTaskRepository struct {
	db DBTX
}

func (r *pgTaskRepository) FindAccess(ctx context.Context, taskUUID string) (*TaskAccess, error) {
	query := `SELECT uuid, user_uuid, assignee_uuid, family_uuid FROM tasks WHERE uuid = $1`
	rows, err := r.db.Query(ctx, query, taskUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	access := &TaskAccess{}
	if err := rows.Scan(&access.UUID, &access.CreatorUUID, &access.AssigneeUUID, &access.FamilyUUID); err != nil {
		return nil, err
	}
	return access, nil
}

func (r *pgTaskRepository) DetachFamily(ctx context.Context, familyUUID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE tasks SET family_uuid = NULL WHERE family_uuid = $1`, familyUUID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
