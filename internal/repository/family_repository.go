package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Family is a named group of users sharing task visibility.
type Family struct {
	UUID      string
	Name      string
	OwnerUUID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FamilyRepository interface {
	Create(ctx context.Context, family *Family) error
	FindByID(ctx context.Context, familyUUID string) (*Family, error)
	UpdateName(ctx context.Context, familyUUID, name string) error
	Delete(ctx context.Context, familyUUID string) error
}

type pgFamilyRepository struct {
	db DBTX
}

func (r *pgFamilyRepository) Create(ctx context.Context, family *Family) error {
	if family.UUID == "" {
		family.UUID = uuid.New().String()
	}
	query := `
		INSERT INTO families (uuid, name, owner_uuid)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, family.UUID, family.Name, family.OwnerUUID).
		Scan(&family.CreatedAt, &family.UpdatedAt)
	return translate(err)
}

func (r *pgFamilyRepository) FindByID(ctx context.Context, familyUUID string) (*Family, error) {
	query := `
		SELECT uuid, name, owner_uuid, created_at, updated_at
		FROM families WHERE uuid = $1
	`
	family := &Family{}
	err := r.db.QueryRow(ctx, query, familyUUID).Scan(
		&family.UUID, &family.Name, &family.OwnerUUID, &family.CreatedAt, &family.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return family, nil
}

func (r *pgFamilyRepository) UpdateName(ctx context.Context, familyUUID, name string) error {
	query := `UPDATE families SET name = $2, updated_at = NOW() WHERE uuid = $1`
	tag, err := r.db.Exec(ctx, query, familyUUID, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgFamilyRepository) Delete(ctx context.Context, familyUUID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM families WHERE uuid = $1`, familyUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
