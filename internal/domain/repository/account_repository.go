package repository

import (
	"context"
	"errors"

	"github.com/swordot/portal/internal/domain/entity"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by Create when the storage rejects a duplicate name or email.
	ErrDuplicate = errors.New("duplicate account")
)

// AccountRepository defines the storage operations the account services need.
type AccountRepository interface {
	// FindConflict returns the first account whose name equals name OR whose email
	// equals email, or (nil, nil) when there is none.
	FindConflict(ctx context.Context, name, email string) (*entity.Account, error)
	// Create inserts the account and sets its ID.
	Create(ctx context.Context, a *entity.Account) error
	// GetByName loads an account with its players and profile.
	GetByName(ctx context.Context, name string) (*entity.Account, error)
	// GetByID loads an account without players.
	GetByID(ctx context.Context, id int64) (*entity.Account, error)
	// Count returns the number of stored accounts.
	Count(ctx context.Context) (int64, error)
}
