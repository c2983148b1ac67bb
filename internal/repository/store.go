package repository

import (
	"context"
	"time"

	"github.com/clinicflow/identity-service/internal/model"
)

// UserStore is the credential store contract shared by the MySQL, Redis and
// in-memory implementations.
//
// Token digests are compared byte for byte. The Swap/Redeem/Clear methods
// are conditional writes: each one checks the slot and writes it in a single
// atomic step so that concurrent callers presenting the same token cannot
// both succeed.
type UserStore interface {
	// Create inserts u. u.ID must already be set.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRole(ctx context.Context, id string, role model.Role) error
	// Delete hard-deletes the user row.
	Delete(ctx context.Context, id string) error

	// SetRefreshToken overwrites the refresh slot unconditionally.
	SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// SwapRefreshToken replaces the refresh slot only if it still holds
	// currentHash and has not expired at now. Otherwise ErrStaleToken.
	SwapRefreshToken(ctx context.Context, id, currentHash, newHash string, newExpiresAt, now time.Time) error
	// ClearRefreshToken empties the refresh slot.
	ClearRefreshToken(ctx context.Context, id string) error

	// SetResetToken overwrites the reset slot unconditionally.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ClearResetToken empties the reset slot if it still holds tokenHash.
	// Clearing a slot that holds something else is a no-op.
	ClearResetToken(ctx context.Context, id, tokenHash string) error
	// RedeemResetToken sets the password hash and empties the reset slot if
	// the slot still holds tokenHash and has not expired at now. Otherwise
	// ErrStaleToken.
	RedeemResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error
}
