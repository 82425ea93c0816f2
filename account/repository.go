package account

import (
	"context"
	"time"
)

// Repository persists user records. Implementations enforce uniqueness of
// username and non-empty email and report collisions as ErrDuplicateUsername
// or ErrDuplicateEmail.
type Repository interface {
	Insert(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*User, error)
	SetLastLogin(ctx context.Context, id string, at time.Time) error
}
