package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"stagepass/internal/database"
	"stagepass/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := d.Bun.NewInsert().Model(user).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: username or email already registered", models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%w: insert user: %v", models.ErrStorageFailure, err)
	}
	return nil
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return d.getUser(ctx, "id = ?", id)
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.getUser(ctx, "email = ?", email)
}

func (d *DB) getUser(ctx context.Context, where string, arg string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load user: %v", models.ErrStorageFailure, err)
	}
	return &user, nil
}

// Taken reports whether the username or email is already registered.
func (d *DB) Taken(ctx context.Context, username, email string) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Where("username = ?", username).
		WhereOr("email = ?", email).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: check user: %v", models.ErrStorageFailure, err)
	}
	return exists, nil
}
