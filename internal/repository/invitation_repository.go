package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// Invitation lets one email address join one family, once, until it expires.
type Invitation struct {
	UUID       string
	FamilyUUID string
	Email      string
	Token      string
	Status     types.InvitationStatus
	InvitedBy  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the invitation's deadline has passed at now.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

type InvitationRepository interface {
	Create(ctx context.Context, invitation *Invitation) error
	FindByID(ctx context.Context, invitationUUID string) (*Invitation, error)
	FindByToken(ctx context.Context, token string) (*Invitation, error)
	// LockByToken is FindByToken with a row lock held until the surrounding
	// transaction ends.
	LockByToken(ctx context.Context, token string) (*Invitation, error)
	FindPending(ctx context.Context, familyUUID, email string, now time.Time) (*Invitation, error)
	ListPending(ctx context.Context, familyUUID string, now time.Time) ([]*Invitation, error)
	// ExpireStale moves pending invitations for (familyUUID, email) whose
	// deadline has passed to expired.
	ExpireStale(ctx context.Context, familyUUID, email string, now time.Time) (int64, error)
	// Transition moves the invitation from one status to another and reports
	// whether the row was still in the from status.
	Transition(ctx context.Context, invitationUUID string, from, to types.InvitationStatus) (bool, error)
	DeleteByFamily(ctx context.Context, familyUUID string) (int64, error)
	PurgeTerminal(ctx context.Context, createdBefore time.Time) (int64, error)
}

type pgInvitationRepository struct {
	db DBTX
}

const invitationColumns = `uuid, family_uuid, email, token, status, invited_by, expires_at, created_at, updated_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	inv := &Invitation{}
	var status string
	err := row.Scan(
		&inv.UUID, &inv.FamilyUUID, &inv.Email, &inv.Token, &status,
		&inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = types.InvitationStatus(status)
	return inv, nil
}

func (r *pgInvitationRepository) findOne(ctx context.Context, query string, args ...any) (*Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *pgInvitationRepository) Create(ctx context.Context, invitation *Invitation) error {
	if invitation.UUID == "" {
		invitation.UUID = uuid.New().String()
	}
	if invitation.Status == "" {
		invitation.Status = types.InvitationPending
	}
	if invitation.CreatedAt.IsZero() {
		invitation.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO family_invitations (uuid, family_uuid, email, token, status, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		invitation.UUID, invitation.FamilyUUID, invitation.Email, invitation.Token,
		string(invitation.Status), invitation.InvitedBy, invitation.ExpiresAt, invitation.CreatedAt,
	).Scan(&invitation.UpdatedAt)
	return translate(err)
}

func (r *pgInvitationRepository) FindByID(ctx context.Context, invitationUUID string) (*Invitation, error) {
	return r.findOne(ctx, `SELECT `+invitationColumns+` FROM family_invitations WHERE uuid = $1`, invitationUUID)
}

func (r *pgInvitationRepository) FindByToken(ctx context.Context, token string) (*Invitation, error) {
	return r.findOne(ctx, `SELECT `+invitationColumns+` FROM family_invitations WHERE token = $1`, token)
}

func (r *pgInvitationRepository) LockByToken(ctx context.Context, token string) (*Invitation, error) {
	return r.findOne(ctx, `SELECT `+invitationColumns+` FROM family_invitations WHERE token = $1 FOR UPDATE`, token)
}

func (r *pgInvitationRepository) FindPending(ctx context.Context, familyUUID, email string, now time.Time) (*Invitation, error) {
	query := `
		SELECT ` + invitationColumns + ` FROM family_invitations
		WHERE family_uuid = $1 AND email = $2 AND status = 'pending' AND expires_at > $3
		LIMIT 1
	`
	return r.findOne(ctx, query, familyUUID, email, now)
}

func (r *pgInvitationRepository) ListPending(ctx context.Context, familyUUID string, now time.Time) ([]*Invitation, error) {
	query := `
		SELECT ` + invitationColumns + ` FROM family_invitations
		WHERE family_uuid = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, familyUUID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := []*Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (r *pgInvitationRepository) ExpireStale(ctx context.Context, familyUUID, email string, now time.Time) (int64, error) {
	query := `
		UPDATE family_invitations SET status = 'expired', updated_at = NOW()
		WHERE family_uuid = $1 AND email = $2 AND status = 'pending' AND expires_at <= $3
	`
	tag, err := r.db.Exec(ctx, query, familyUUID, email, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgInvitationRepository) Transition(ctx context.Context, invitationUUID string, from, to types.InvitationStatus) (bool, error) {
	query := `UPDATE family_invitations SET status = $3, updated_at = NOW() WHERE uuid = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, invitationUUID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgInvitationRepository) DeleteByFamily(ctx context.Context, familyUUID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM family_invitations WHERE family_uuid = $1`, familyUUID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgInvitationRepository) PurgeTerminal(ctx context.Context, createdBefore time.Time) (int64, error) {
	query := `DELETE FROM family_invitations WHERE status <> 'pending' AND created_at < $1`
	tag, err := r.db.Exec(ctx, query, createdBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
