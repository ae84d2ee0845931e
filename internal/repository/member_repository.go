package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// FamilyMember is one user's membership in one family.
type FamilyMember struct {
	UUID       string
	FamilyUUID string
	UserUUID   string
	Role       types.Role
	Status     string
	InvitedBy  *string
	InvitedAt  *time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// MemberWithUser is a membership left-joined with the user's display fields.
// Username and Email are empty when the user row is missing.
type MemberWithUser struct {
	FamilyMember
	Username string
	Email    string
}

type MemberRepository interface {
	Create(ctx context.Context, member *FamilyMember) error
	// FindByUser returns the user's only membership, if any.
	FindByUser(ctx context.Context, userUUID string) (*FamilyMember, error)
	FindMember(ctx context.Context, familyUUID, userUUID string) (*FamilyMember, error)
	ListWithUsers(ctx context.Context, familyUUID string) ([]*MemberWithUser, error)
	ExistsByEmail(ctx context.Context, familyUUID, email string) (bool, error)
	UpdateRole(ctx context.Context, familyUUID, userUUID string, role types.Role) error
	Delete(ctx context.Context, familyUUID, userUUID string) error
	DeleteByFamily(ctx context.Context, familyUUID string) (int64, error)
}

type pgMemberRepository struct {
	db DBTX
}

const memberColumns = `m.uuid, m.family_uuid, m.user_uuid, m.role, m.status, m.invited_by, m.invited_at, m.accepted_at, m.created_at`

func scanMember(row pgx.Row, m *FamilyMember, extra ...any) error {
	var role string
	dest := append([]any{
		&m.UUID, &m.FamilyUUID, &m.UserUUID, &role, &m.Status,
		&m.InvitedBy, &m.InvitedAt, &m.AcceptedAt, &m.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	m.Role = types.Role(role)
	return nil
}

func (r *pgMemberRepository) Create(ctx context.Context, member *FamilyMember) error {
	if member.UUID == "" {
		member.UUID = uuid.New().String()
	}
	if member.Status == "" {
		member.Status = types.MemberStatusActive
	}
	query := `
		INSERT INTO family_members (uuid, family_uuid, user_uuid, role, status, invited_by, invited_at, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		member.UUID, member.FamilyUUID, member.UserUUID, string(member.Role), member.Status,
		member.InvitedBy, member.InvitedAt, member.AcceptedAt,
	).Scan(&member.CreatedAt)
	return translate(err)
}

func (r *pgMemberRepository) FindByUser(ctx context.Context, userUUID string) (*FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members m WHERE m.user_uuid = $1 AND m.status = 'active'`
	member := &FamilyMember{}
	err := scanMember(r.db.QueryRow(ctx, query, userUUID), member)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (r *pgMemberRepository) FindMember(ctx context.Context, familyUUID, userUUID string) (*FamilyMember, error) {
	query := `
		SELECT ` + memberColumns + ` FROM family_members m
		WHERE m.family_uuid = $1 AND m.user_uuid = $2 AND m.status = 'active'
	`
	member := &FamilyMember{}
	err := scanMember(r.db.QueryRow(ctx, query, familyUUID, userUUID), member)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (r *pgMemberRepository) ListWithUsers(ctx context.Context, familyUUID string) ([]*MemberWithUser, error) {
	query := `
		SELECT ` + memberColumns + `, COALESCE(u.username, ''), COALESCE(u.email, '')
		FROM family_members m
		LEFT JOIN users u ON u.uuid = m.user_uuid
		WHERE m.family_uuid = $1 AND m.status = 'active'
		ORDER BY m.created_at, m.uuid
	`
	rows, err := r.db.Query(ctx, query, familyUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []*MemberWithUser{}
	for rows.Next() {
		m := &MemberWithUser{}
		if err := scanMember(rows, &m.FamilyMember, &m.Username, &m.Email); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *pgMemberRepository) ExistsByEmail(ctx context.Context, familyUUID, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM family_members m
			JOIN users u ON u.uuid = m.user_uuid
			WHERE m.family_uuid = $1 AND m.status = 'active' AND u.email = $2
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, familyUUID, email).Scan(&exists)
	return exists, err
}

func (r *pgMemberRepository) UpdateRole(ctx context.Context, familyUUID, userUUID string, role types.Role) error {
	query := `UPDATE family_members SET role = $3 WHERE family_uuid = $1 AND user_uuid = $2`
	tag, err := r.db.Exec(ctx, query, familyUUID, userUUID, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgMemberRepository) Delete(ctx context.Context, familyUUID, userUUID string) error {
	query := `DELETE FROM family_members WHERE family_uuid = $1 AND user_uuid = $2`
	tag, err := r.db.Exec(ctx, query, familyUUID, userUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgMemberRepository) DeleteByFamily(ctx context.Context, familyUUID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM family_members WHERE family_uuid = $1`, familyUUID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
