// Package service implements the identity and session lifecycle: account
// registration, login, refresh-token rotation, password change and
// recovery, and role administration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/clinicflow/identity-service/internal/metrics"
	"github.com/clinicflow/identity-service/internal/model"
	"github.com/clinicflow/identity-service/internal/repository"
	"github.com/clinicflow/identity-service/internal/utils"
)

// dummyPassword is hashed at construction so that Login spends the same
// bcrypt time on an unknown email as on a wrong password.
const dummyPassword = "dummy-password-for-timing"

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// AccessIssuer signs access tokens.
type AccessIssuer interface {
	Issue(u *model.User) (utils.AccessToken, error)
}

// Config holds the token lifetimes the facade owns. The access token TTL
// belongs to the issuer.
type Config struct {
	RefreshTTL   time.Duration
	ResetTTL     time.Duration
	ResetURLBase string
}

// DefaultConfig returns the production lifetimes.
func DefaultConfig() Config {
	return Config{
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   time.Hour,
	}
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithClock replaces time.Now for every expiry decision.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for non-fatal events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// AuthResult pairs the tokens with the user they were issued for.
type AuthResult struct {
	Tokens TokenPair
	User   *model.User
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
	Role     string
}

// AuthService is the single entry point for identity operations. It does
// not authorize its callers; the HTTP layer does.
type AuthService struct {
	users   repository.UserStore
	hasher  PasswordHasher
	issuer  AccessIssuer
	refresh *RefreshManager
	reset   *ResetManager
	logger  *slog.Logger
	now     func() time.Time

	dummyHash string
}

func NewAuthService(users repository.UserStore, hasher PasswordHasher, issuer AccessIssuer, notifier Notifier, cfg Config, opts ...Option) (*AuthService, error) {
	switch {
	case users == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("user store is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password hasher is required")
	case issuer == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token issuer is required")
	case notifier == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("reset notifier is required")
	case cfg.RefreshTTL <= 0 || cfg.ResetTTL <= 0:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token lifetimes must be positive")
	}

	s := &AuthService{
		users:  users,
		hasher: hasher,
		issuer: issuer,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Wrapf(err, "hash dummy password")
	}
	s.dummyHash = dummy
	s.refresh = NewRefreshManager(users, cfg.RefreshTTL, s.now)
	s.reset = NewResetManager(users, hasher, notifier, cfg.ResetTTL, cfg.ResetURLBase, s.now)
	return s, nil
}

// Register creates a new account. The email is trimmed and kept
// case-sensitive.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (u *model.User, err error) {
	defer func() { observe("register", err) }()

	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	if fullName == "" || email == "" || in.Password == "" {
		return nil, oops.Code("AUTH_INVALID_INPUT").Wrap(ErrInvalidInput)
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return nil, oops.Code("AUTH_INVALID_ROLE").With("role", in.Role).Wrap(ErrInvalidRole)
	}
	if err := utils.CheckPasswordStrength(in.Password); err != nil {
		return nil, weakPassword(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	now := s.now().UTC()
	u = &model.User{
		ID:           ulid.Make().String(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrEmailTaken)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").Wrap(err)
	}
	return u, nil
}

// Login verifies credentials and issues a fresh token pair, revoking any
// previous refresh token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (res *AuthResult, err error) {
	defer func() { observe("login", err) }()

	email = strings.TrimSpace(email)
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(s.dummyHash, password)
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").Wrap(err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, invalidCredentials()
	}
	return s.issuePair(ctx, u)
}

// RefreshTokens exchanges a live refresh token for a new pair. The
// presented token stops working in the same write that stores its
// replacement.
func (s *AuthService) RefreshTokens(ctx context.Context, userID, refreshToken string) (res *AuthResult, err error) {
	defer func() { observe("refresh", err) }()

	u, err := s.refresh.Validate(ctx, userID, refreshToken)
	if err != nil {
		return nil, err
	}
	access, err := s.issuer.Issue(u)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	next, err := s.refresh.Rotate(ctx, u, refreshToken)
	if errors.Is(err, ErrInvalidRefreshToken) {
		s.logger.InfoContext(ctx, "refresh token superseded during rotation", "user_id", u.ID)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &AuthResult{Tokens: pair(access, next), User: u}, nil
}

// Logout empties the refresh slot of the user owning email. Access tokens
// already handed out stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, email string) (err error) {
	defer func() { observe("logout", err) }()

	u, err := s.userByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	return s.refresh.Revoke(ctx, u.ID)
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (err error) {
	defer func() { observe("change_password", err) }()

	u, err := s.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.PasswordHash, currentPassword) {
		return invalidCredentials()
	}
	if newPassword == currentPassword {
		return oops.Code("AUTH_SAME_PASSWORD").Wrap(ErrSamePassword)
	}
	if err := utils.CheckPasswordStrength(newPassword); err != nil {
		return weakPassword(err)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userNotFound(u.ID)
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return nil
}

// ForgotPassword issues a reset token for email and mails it. The token is
// never returned.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { observe("forgot_password", err) }()

	u, err := s.userByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	return s.reset.Issue(ctx, u)
}

// ResetPassword redeems a reset token and sets the new password.
func (s *AuthService) ResetPassword(ctx context.Context, email, resetToken, newPassword string) (err error) {
	defer func() { observe("reset_password", err) }()
	return s.reset.Redeem(ctx, email, resetToken, newPassword)
}

// ChangeUserRole sets the role claim carried by the user's future tokens.
func (s *AuthService) ChangeUserRole(ctx context.Context, userID, newRole string) (err error) {
	defer func() { observe("change_role", err) }()

	role, ok := model.ParseRole(newRole)
	if !ok {
		return oops.Code("AUTH_INVALID_ROLE").With("role", newRole).Wrap(ErrInvalidRole)
	}
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userNotFound(userID)
		}
		return oops.Code("AUTH_CHANGE_ROLE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// DeleteUser hard-deletes the account.
func (s *AuthService) DeleteUser(ctx context.Context, userID string) (err error) {
	defer func() { observe("delete_user", err) }()

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userNotFound(userID)
		}
		return oops.Code("AUTH_DELETE_USER_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// ListUsers returns every account in creation order.
func (s *AuthService) ListUsers(ctx context.Context) (users []model.User, err error) {
	defer func() { observe("list_users", err) }()

	users, err = s.users.List(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_LIST_USERS_FAILED").Wrap(err)
	}
	return users, nil
}

func (s *AuthService) issuePair(ctx context.Context, u *model.User) (*AuthResult, error) {
	access, err := s.issuer.Issue(u)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	refresh, err := s.refresh.IssueAndPersist(ctx, u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Tokens: pair(access, refresh), User: u}, nil
}

func (s *AuthService) userByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, userNotFound(id)
	}
	if err != nil {
		return nil, oops.Code("AUTH_USER_LOOKUP_FAILED").With("user_id", id).Wrap(err)
	}
	return u, nil
}

func (s *AuthService) userByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrUserNotFound)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("AUTH_USER_LOOKUP_FAILED").Wrap(err)
	}
	return u, nil
}

func pair(access utils.AccessToken, refresh IssuedToken) TokenPair {
	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.ExpiresAt,
	}
}

func observe(operation string, err error) {
	switch {
	case err == nil:
		metrics.Record(operation, metrics.OutcomeSuccess)
	case IsRejection(err):
		metrics.Record(operation, metrics.OutcomeRejected)
	default:
		metrics.Record(operation, metrics.OutcomeError)
	}
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func userNotFound(id string) error {
	return oops.Code("AUTH_USER_NOT_FOUND").With("user_id", id).Wrap(ErrUserNotFound)
}

func weakPassword(rule error) error {
	return oops.Code("AUTH_WEAK_PASSWORD").Wrap(fmt.Errorf("%w: %w", ErrWeakPassword, rule))
}
