package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"contentgen/internal/domain"
	"contentgen/internal/infra"
	"contentgen/internal/sqlinline"
)

// UserDirectoryPG implements domain.UserDirectory backed by the users table.
type UserDirectoryPG struct {
	db infra.SQLExecutor
}

// NewUserDirectory creates a new UserDirectoryPG.
func NewUserDirectory(db infra.SQLExecutor) *UserDirectoryPG {
	return &UserDirectoryPG{db: db}
}

// Exists reports whether a user with the id is registered.
func (r *UserDirectoryPG) Exists(ctx context.Context, userID string) (bool, error) {
	if !isUUID(userID) {
		return false, nil
	}
	var ok bool
	if err := r.db.QueryRow(ctx, sqlinline.QUserExists, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return ok, nil
}

// Earliest returns the first registered user.
func (r *UserDirectoryPG) Earliest(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := r.db.QueryRow(ctx, sqlinline.QSelectEarliestUser).Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select earliest user: %w", err)
	}
	return &u, nil
}

func isUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
