package service

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/clinicflow/identity-service/internal/model"
	"github.com/clinicflow/identity-service/internal/repository"
	"github.com/clinicflow/identity-service/internal/utils"
)

// IssuedToken is a raw opaque token and the moment it stops being accepted.
// The raw value is handed to the client; only its digest is stored.
type IssuedToken struct {
	Raw       string
	ExpiresAt time.Time
}

// RefreshManager owns the single refresh-token slot of each user.
type RefreshManager struct {
	users repository.UserStore
	ttl   time.Duration
	now   func() time.Time
}

func NewRefreshManager(users repository.UserStore, ttl time.Duration, now func() time.Time) *RefreshManager {
	if now == nil {
		now = time.Now
	}
	return &RefreshManager{users: users, ttl: ttl, now: now}
}

// Generate returns a fresh opaque token with the configured expiry. It does
// not touch the store.
func (m *RefreshManager) Generate() (IssuedToken, error) {
	raw, err := utils.GenerateOpaqueToken()
	if err != nil {
		return IssuedToken{}, oops.Code("AUTH_TOKEN_GENERATION_FAILED").Wrap(err)
	}
	return IssuedToken{Raw: raw, ExpiresAt: m.now().UTC().Add(m.ttl)}, nil
}

// IssueAndPersist generates a token and overwrites the user's refresh slot
// with it, revoking whatever was there before.
func (m *RefreshManager) IssueAndPersist(ctx context.Context, u *model.User) (IssuedToken, error) {
	tok, err := m.Generate()
	if err != nil {
		return IssuedToken{}, err
	}
	if err := m.users.SetRefreshToken(ctx, u.ID, utils.HashToken(tok.Raw), tok.ExpiresAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return IssuedToken{}, oops.Code("AUTH_USER_NOT_FOUND").With("user_id", u.ID).Wrap(ErrUserNotFound)
		}
		return IssuedToken{}, oops.Code("AUTH_REFRESH_PERSIST_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return tok, nil
}

// Validate returns the user when presented matches the live refresh slot.
// Unknown user, digest mismatch and expiry all yield ErrInvalidRefreshToken.
func (m *RefreshManager) Validate(ctx context.Context, userID, presented string) (*model.User, error) {
	if userID == "" || presented == "" {
		return nil, invalidRefresh()
	}
	u, err := m.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalidRefresh()
	}
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_LOOKUP_FAILED").With("user_id", userID).Wrap(err)
	}
	if !u.HasLiveRefreshToken(m.now()) || !utils.DigestsEqual(u.RefreshTokenHash, utils.HashToken(presented)) {
		return nil, invalidRefresh()
	}
	return u, nil
}

// Rotate replaces presented with a new token in one conditional write. Of
// several callers presenting the same token at most one succeeds; the rest
// get ErrInvalidRefreshToken.
func (m *RefreshManager) Rotate(ctx context.Context, u *model.User, presented string) (IssuedToken, error) {
	tok, err := m.Generate()
	if err != nil {
		return IssuedToken{}, err
	}
	err = m.users.SwapRefreshToken(ctx, u.ID, utils.HashToken(presented), utils.HashToken(tok.Raw), tok.ExpiresAt, m.now().UTC())
	if errors.Is(err, repository.ErrStaleToken) || errors.Is(err, repository.ErrNotFound) {
		return IssuedToken{}, invalidRefresh()
	}
	if err != nil {
		return IssuedToken{}, oops.Code("AUTH_REFRESH_ROTATE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return tok, nil
}

// Revoke empties the refresh slot.
func (m *RefreshManager) Revoke(ctx context.Context, userID string) error {
	err := m.users.ClearRefreshToken(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return oops.Code("AUTH_USER_NOT_FOUND").With("user_id", userID).Wrap(ErrUserNotFound)
	}
	if err != nil {
		return oops.Code("AUTH_REFRESH_REVOKE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func invalidRefresh() error {
	return oops.Code("AUTH_INVALID_REFRESH_TOKEN").Wrap(ErrInvalidRefreshToken)
}
