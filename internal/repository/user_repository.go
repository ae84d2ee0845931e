package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// User is the slice of the account record this service reads. Accounts are
// owned by the auth subsystem.
type User struct {
	UUID     string
	Username string
	Email    string
}

type UserRepository interface {
	FindByID(ctx context.Context, userUUID string) (*User, error)
}

type pgUserRepository struct {
	db DBTX
}

func (r *pgUserRepository) FindByID(ctx context.Context, userUUID string) (*User, error) {
	user := &User{}
	err := r.db.QueryRow(ctx, `SELECT uuid, username, email FROM users WHERE uuid = $1`, userUUID).
		Scan(&user.UUID, &user.Username, &user.Email)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
