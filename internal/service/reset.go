package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/clinicflow/identity-service/internal/model"
	"github.com/clinicflow/identity-service/internal/queue"
	"github.com/clinicflow/identity-service/internal/repository"
	"github.com/clinicflow/identity-service/internal/utils"
)

// Notifier hands a reset notice to the mail transport. The raw token travels
// only through this call.
type Notifier interface {
	NotifyPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error
}

// ResetManager issues and redeems single-use password reset tokens.
type ResetManager struct {
	users    repository.UserStore
	hasher   PasswordHasher
	notifier Notifier
	ttl      time.Duration
	urlBase  string
	now      func() time.Time
}

func NewResetManager(users repository.UserStore, hasher PasswordHasher, notifier Notifier, ttl time.Duration, urlBase string, now func() time.Time) *ResetManager {
	if now == nil {
		now = time.Now
	}
	return &ResetManager{
		users:    users,
		hasher:   hasher,
		notifier: notifier,
		ttl:      ttl,
		urlBase:  urlBase,
		now:      now,
	}
}

// Issue stores a new reset token for u, overwriting any previous one, and
// sends it through the notifier. When the notifier fails the slot is
// cleared again so no undeliverable token stays live.
func (m *ResetManager) Issue(ctx context.Context, u *model.User) error {
	raw, err := utils.GenerateOpaqueToken()
	if err != nil {
		return oops.Code("AUTH_TOKEN_GENERATION_FAILED").Wrap(err)
	}
	now := m.now().UTC()
	exp := now.Add(m.ttl)
	digest := utils.HashToken(raw)

	if err := m.users.SetResetToken(ctx, u.ID, digest, exp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return oops.Code("AUTH_USER_NOT_FOUND").With("user_id", u.ID).Wrap(ErrUserNotFound)
		}
		return oops.Code("AUTH_RESET_PERSIST_FAILED").With("user_id", u.ID).Wrap(err)
	}

	ev := queue.PasswordResetRequested{
		UserID:      u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		ResetToken:  raw,
		ResetURL:    m.resetURL(u.Email, raw),
		ExpiresAt:   exp.Format(time.RFC3339),
		RequestedAt: now.Format(time.RFC3339),
	}
	if notifyErr := m.notifier.NotifyPasswordReset(ctx, ev); notifyErr != nil {
		clearErr := m.users.ClearResetToken(context.WithoutCancel(ctx), u.ID, digest)
		return oops.Code("AUTH_RESET_NOTIFY_FAILED").
			With("user_id", u.ID).
			With("notify_error", notifyErr.Error()).
			With("slot_cleared", clearErr == nil).
			Wrap(ErrNotificationFailed)
	}
	return nil
}

// Redeem sets a new password for the user owning email when token matches
// the live reset slot. Success empties the slot in the same write, so a
// token can be redeemed once. An expired slot is emptied on sight.
func (m *ResetManager) Redeem(ctx context.Context, email, token, newPassword string) error {
	email = strings.TrimSpace(email)
	if email == "" || token == "" || newPassword == "" {
		return oops.Code("AUTH_INVALID_INPUT").Wrap(ErrInvalidInput)
	}
	u, err := m.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return invalidReset()
	}
	if err != nil {
		return oops.Code("AUTH_RESET_LOOKUP_FAILED").Wrap(err)
	}

	now := m.now().UTC()
	if u.ResetTokenHash != "" && !u.HasLiveResetToken(now) {
		if err := m.users.ClearResetToken(ctx, u.ID, u.ResetTokenHash); err != nil {
			return oops.Code("AUTH_RESET_CLEAR_FAILED").With("user_id", u.ID).Wrap(err)
		}
		return invalidReset()
	}
	digest := utils.HashToken(token)
	if !u.HasLiveResetToken(now) || !utils.DigestsEqual(u.ResetTokenHash, digest) {
		return invalidReset()
	}

	hash, err := m.hasher.Hash(newPassword)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return weakPassword(err)
	}
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}

	err = m.users.RedeemResetToken(ctx, u.ID, digest, hash, now)
	if errors.Is(err, repository.ErrStaleToken) {
		return invalidReset()
	}
	if err != nil {
		return oops.Code("AUTH_RESET_REDEEM_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return nil
}

func (m *ResetManager) resetURL(email, token string) string {
	if m.urlBase == "" {
		return ""
	}
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	sep := "?"
	if strings.Contains(m.urlBase, "?") {
		sep = "&"
	}
	return m.urlBase + sep + q.Encode()
}

func invalidReset() error {
	return oops.Code("AUTH_INVALID_RESET_TOKEN").Wrap(ErrInvalidResetToken)
}
