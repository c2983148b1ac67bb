package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/identity-service/internal/metrics"
	"github.com/clinicflow/identity-service/internal/model"
	"github.com/clinicflow/identity-service/internal/queue"
	"github.com/clinicflow/identity-service/internal/repository"
	"github.com/clinicflow/identity-service/internal/utils"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the user", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, " Alice ", " a@x.com ", "Passw0rd", model.RolePatient)

		assert.NotEmpty(t, u.ID)
		assert.Equal(t, "Alice", u.FullName)
		assert.Equal(t, "a@x.com", u.Email)
		assert.Equal(t, model.RolePatient, u.Role)
		assert.NotEqual(t, "Passw0rd", u.PasswordHash)
		assert.Equal(t, f.clock.Now(), u.CreatedAt)

		stored := f.stored(t, u.ID)
		assert.Equal(t, u.PasswordHash, stored.PasswordHash)
	})

	t.Run("duplicate email fails and keeps the first record", func(t *testing.T) {
		f := newFixture(t)
		first := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)

		_, err := f.svc.Register(ctx, RegisterInput{FullName: "Mallory", Email: "a@x.com", Password: "Other1234", Role: "Doctor"})
		assert.ErrorIs(t, err, ErrEmailTaken)
		assert.True(t, IsRejection(err))

		stored := f.stored(t, first.ID)
		assert.Equal(t, "Alice", stored.FullName)
		assert.Equal(t, model.RolePatient, stored.Role)
		assert.Equal(t, first.PasswordHash, stored.PasswordHash)
	})

	t.Run("email is case sensitive", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		_, err := f.svc.Register(ctx, RegisterInput{FullName: "Alice", Email: "A@x.com", Password: "Passw0rd", Role: "Patient"})
		assert.NoError(t, err)
	})

	t.Run("strength policy", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, RegisterInput{FullName: "A", Email: "a@x.com", Password: "abc12345", Role: "Patient"})
		assert.ErrorIs(t, err, ErrWeakPassword)
		assert.ErrorIs(t, err, utils.ErrPasswordNoUpper)

		_, err = f.svc.Register(ctx, RegisterInput{FullName: "A", Email: "a@x.com", Password: "Abc12345", Role: "Patient"})
		assert.NoError(t, err)
	})

	t.Run("input validation", func(t *testing.T) {
		f := newFixture(t)
		tests := []struct {
			name string
			in   RegisterInput
			want error
		}{
			{"missing name", RegisterInput{Email: "a@x.com", Password: "Passw0rd", Role: "Patient"}, ErrInvalidInput},
			{"blank email", RegisterInput{FullName: "A", Email: "  ", Password: "Passw0rd", Role: "Patient"}, ErrInvalidInput},
			{"missing password", RegisterInput{FullName: "A", Email: "a@x.com", Role: "Patient"}, ErrInvalidInput},
			{"unknown role", RegisterInput{FullName: "A", Email: "a@x.com", Password: "Passw0rd", Role: "Nurse"}, ErrInvalidRole},
			{"empty role", RegisterInput{FullName: "A", Email: "a@x.com", Password: "Passw0rd"}, ErrInvalidRole},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Register(ctx, tt.in)
				assert.ErrorIs(t, err, tt.want)
			})
		}
	})

	t.Run("role names ignore case", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Register(ctx, RegisterInput{FullName: "A", Email: "a@x.com", Password: "Passw0rd", Role: "clinicadmin"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleClinicAdmin, u.Role)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a token pair carrying the identity claims", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RoleDoctor)

		res := f.login(t, "a@x.com", "Passw0rd")
		assert.Equal(t, u.ID, res.User.ID)
		assert.NotEmpty(t, res.Tokens.RefreshToken)
		assert.Equal(t, f.clock.Now().Add(15*time.Minute), res.Tokens.AccessExpiresAt)
		assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), res.Tokens.RefreshExpiresAt)

		claims, err := f.issuer.Parse(res.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, u.ID, claims.Subject)
		assert.Equal(t, "a@x.com", claims.Email)
		assert.Equal(t, "Doctor", claims.Role)
	})

	t.Run("stores only the refresh digest", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		res := f.login(t, "a@x.com", "Passw0rd")

		stored := f.stored(t, u.ID)
		assert.NotEqual(t, res.Tokens.RefreshToken, stored.RefreshTokenHash)
		assert.Equal(t, utils.HashToken(res.Tokens.RefreshToken), stored.RefreshTokenHash)
	})

	t.Run("second login invalidates the first refresh token", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		first := f.login(t, "a@x.com", "Passw0rd")
		second := f.login(t, "a@x.com", "Passw0rd")
		assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

		_, err := f.svc.RefreshTokens(ctx, u.ID, first.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)

		_, err = f.svc.RefreshTokens(ctx, u.ID, second.Tokens.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)

		_, unknown := f.svc.Login(ctx, "b@x.com", "Passw0rd")
		_, wrong := f.svc.Login(ctx, "a@x.com", "Passw0rd!")
		require.Error(t, unknown)
		require.Error(t, wrong)
		assert.ErrorIs(t, unknown, ErrInvalidCredentials)
		assert.ErrorIs(t, wrong, ErrInvalidCredentials)
		assert.Equal(t, unknown.Error(), wrong.Error())
	})

	t.Run("store fault is not a rejection", func(t *testing.T) {
		boom := errors.New("store unavailable")
		f := newFixtureWithStore(t, &faultyStore{MemoryStore: repository.NewMemoryStore(), err: boom})
		_, err := f.svc.Login(ctx, "a@x.com", "Passw0rd")
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsRejection(err))
	})
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates both tokens", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		first := f.login(t, "a@x.com", "Passw0rd")

		f.clock.Advance(time.Minute)
		next, err := f.svc.RefreshTokens(ctx, u.ID, first.Tokens.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, first.Tokens.RefreshToken, next.Tokens.RefreshToken)
		assert.NotEqual(t, first.Tokens.AccessToken, next.Tokens.AccessToken)
		assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), next.Tokens.RefreshExpiresAt)
	})

	t.Run("expired token always fails", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		res := f.login(t, "a@x.com", "Passw0rd")

		f.clock.Advance(7 * 24 * time.Hour)
		_, err := f.svc.RefreshTokens(ctx, u.ID, res.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)

		f.clock.Advance(time.Second)
		_, err = f.svc.RefreshTokens(ctx, u.ID, res.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("every invalid pair yields the same rejection", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		res := f.login(t, "a@x.com", "Passw0rd")

		cases := map[string][2]string{
			"unknown user":    {"01UNKNOWN", res.Tokens.RefreshToken},
			"wrong token":     {u.ID, "not-the-token"},
			"empty token":     {u.ID, ""},
			"empty user id":   {"", res.Tokens.RefreshToken},
			"digest as token": {u.ID, utils.HashToken(res.Tokens.RefreshToken)},
		}
		for name, c := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := f.svc.RefreshTokens(ctx, c[0], c[1])
				assert.ErrorIs(t, err, ErrInvalidRefreshToken)
				assert.Equal(t, invalidRefresh().Error(), err.Error())
			})
		}
	})

	t.Run("concurrent refresh with one token has exactly one winner", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		res := f.login(t, "a@x.com", "Passw0rd")

		const callers = 20
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []*AuthResult
			losers  int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := f.svc.RefreshTokens(ctx, u.ID, res.Tokens.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					assert.ErrorIs(t, err, ErrInvalidRefreshToken)
					losers++
					return
				}
				winners = append(winners, out)
			}()
		}
		wg.Wait()

		require.Len(t, winners, 1)
		assert.Equal(t, callers-1, losers)
		assert.Equal(t, utils.HashToken(winners[0].Tokens.RefreshToken), f.stored(t, u.ID).RefreshTokenHash)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
	res := f.login(t, "a@x.com", "Passw0rd")

	require.NoError(t, f.svc.Logout(ctx, "a@x.com"))
	stored := f.stored(t, u.ID)
	assert.Empty(t, stored.RefreshTokenHash)
	assert.Nil(t, stored.RefreshTokenExpiresAt)

	_, err := f.svc.RefreshTokens(ctx, u.ID, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	assert.ErrorIs(t, f.svc.Logout(ctx, "nobody@x.com"), ErrUserNotFound)
	assert.ErrorIs(t, f.svc.Logout(ctx, ""), ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the password", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)

		require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "Passw0rd", "N3wPassword"))
		_, err := f.svc.Login(ctx, "a@x.com", "Passw0rd")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		f.login(t, "a@x.com", "N3wPassword")
	})

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		before := f.stored(t, u.ID).PasswordHash

		assert.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "Passw0rd", "Passw0rd"), ErrSamePassword)
		assert.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "Wrong1234", "N3wPassword"), ErrInvalidCredentials)
		assert.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "Passw0rd", "weakpass1"), ErrWeakPassword)
		assert.ErrorIs(t, f.svc.ChangePassword(ctx, "01UNKNOWN", "Passw0rd", "N3wPassword"), ErrUserNotFound)

		assert.Equal(t, before, f.stored(t, u.ID).PasswordHash)
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a one hour token and mails it", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		lastToken := f.expectResetMail()

		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))

		raw := lastToken()
		require.NotEmpty(t, raw)
		stored := f.stored(t, u.ID)
		assert.Equal(t, utils.HashToken(raw), stored.ResetTokenHash)
		require.NotNil(t, stored.ResetTokenExpiresAt)
		assert.Equal(t, f.clock.Now().Add(time.Hour), *stored.ResetTokenExpiresAt)

		issuedAt := f.clock.Now().UTC()
		f.notifier.AssertCalled(t, "NotifyPasswordReset", mock.Anything, mock.MatchedBy(func(ev queue.PasswordResetRequested) bool {
			return ev.UserID == u.ID && ev.Email == "a@x.com" && ev.FullName == "Alice" &&
				ev.ResetURL == "https://app.test/reset?email=a%40x.com&token="+raw &&
				ev.RequestedAt == issuedAt.Format(time.RFC3339) &&
				ev.ExpiresAt == issuedAt.Add(time.Hour).Format(time.RFC3339)
		}))
	})

	t.Run("unknown email is rejected without mail", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ForgotPassword(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
		f.notifier.AssertNotCalled(t, "NotifyPasswordReset", mock.Anything, mock.Anything)
	})

	t.Run("mail failure is a fault and leaves no live token", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		f.notifier.On("NotifyPasswordReset", mock.Anything, mock.Anything).Return(errors.New("broker down"))

		err := f.svc.ForgotPassword(ctx, "a@x.com")
		assert.ErrorIs(t, err, ErrNotificationFailed)
		assert.False(t, IsRejection(err))

		stored := f.stored(t, u.ID)
		assert.Empty(t, stored.ResetTokenHash)
		assert.Nil(t, stored.ResetTokenExpiresAt)
	})

	t.Run("a new request supersedes the previous token", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		lastToken := f.expectResetMail()

		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
		first := lastToken()
		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))

		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", first, "N3wPassword"), ErrInvalidResetToken)
		assert.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", lastToken(), "N3wPassword"))
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("token is single use", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		lastToken := f.expectResetMail()
		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
		token := lastToken()

		require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", token, "N3wPassword"))
		stored := f.stored(t, u.ID)
		assert.Empty(t, stored.ResetTokenHash)
		f.login(t, "a@x.com", "N3wPassword")

		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", token, "An0therOne"), ErrInvalidResetToken)
		f.login(t, "a@x.com", "N3wPassword")
	})

	t.Run("token dies after one hour and the slot is cleared", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		lastToken := f.expectResetMail()
		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))

		f.clock.Advance(time.Hour)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", lastToken(), "N3wPassword"), ErrInvalidResetToken)

		stored := f.stored(t, u.ID)
		assert.Empty(t, stored.ResetTokenHash)
		assert.Nil(t, stored.ResetTokenExpiresAt)
		f.login(t, "a@x.com", "Passw0rd")
	})

	t.Run("mismatch and unknown email", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		lastToken := f.expectResetMail()
		require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))

		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", "guess", "N3wPassword"), ErrInvalidResetToken)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "b@x.com", lastToken(), "N3wPassword"), ErrInvalidResetToken)
		assert.Equal(t, utils.HashToken(lastToken()), f.stored(t, u.ID).ResetTokenHash, "a wrong guess keeps the live token")
	})

	t.Run("no token issued", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", "anything", "N3wPassword"), ErrInvalidResetToken)
	})

	t.Run("input validation", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "", "t", "N3wPassword"), ErrInvalidInput)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", "", "N3wPassword"), ErrInvalidInput)
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", "t", ""), ErrInvalidInput)
	})
}

func TestChangeUserRole(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id changes nothing", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)

		assert.ErrorIs(t, f.svc.ChangeUserRole(ctx, "01UNKNOWN", "Doctor"), ErrUserNotFound)
		users, err := f.svc.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, model.RolePatient, users[0].Role)
		assert.Equal(t, u.ID, users[0].ID)
	})

	t.Run("later tokens carry the new role", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		before := f.login(t, "a@x.com", "Passw0rd")

		require.NoError(t, f.svc.ChangeUserRole(ctx, u.ID, "Doctor"))

		after := f.login(t, "a@x.com", "Passw0rd")
		claims, err := f.issuer.Parse(after.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "Doctor", claims.Role)

		refreshed, err := f.svc.RefreshTokens(ctx, u.ID, after.Tokens.RefreshToken)
		require.NoError(t, err)
		claims, err = f.issuer.Parse(refreshed.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "Doctor", claims.Role)

		old, err := f.issuer.Parse(before.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "Patient", old.Role, "issued tokens are not rewritten")
	})

	t.Run("invalid role", func(t *testing.T) {
		f := newFixture(t)
		u := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
		assert.ErrorIs(t, f.svc.ChangeUserRole(ctx, u.ID, "Janitor"), ErrInvalidRole)
	})
}

func TestDeleteAndListUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)
	f.clock.Advance(time.Second)
	bob := f.register(t, "Bob", "b@x.com", "Passw0rd", model.RoleDoctor)

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, alice.ID, users[0].ID)
	assert.Equal(t, bob.ID, users[1].ID)

	require.NoError(t, f.svc.DeleteUser(ctx, alice.ID))
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, alice.ID), ErrUserNotFound)
	_, err = f.svc.Login(ctx, "a@x.com", "Passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users, err = f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)
}

func TestEndToEndSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u, err := f.svc.Register(ctx, RegisterInput{FullName: "Alice", Email: "a@x.com", Password: "Passw0rd", Role: "Patient"})
	require.NoError(t, err)

	t1, err := f.svc.Login(ctx, "a@x.com", "Passw0rd")
	require.NoError(t, err)

	t2, err := f.svc.RefreshTokens(ctx, u.ID, t1.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, t1.Tokens.RefreshToken, t2.Tokens.RefreshToken)

	_, err = f.svc.RefreshTokens(ctx, u.ID, t1.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestOperationsAreCounted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "Alice", "a@x.com", "Passw0rd", model.RolePatient)

	success := testutil.ToFloat64(metrics.AuthOperations.WithLabelValues("login", metrics.OutcomeSuccess))
	rejected := testutil.ToFloat64(metrics.AuthOperations.WithLabelValues("login", metrics.OutcomeRejected))

	f.login(t, "a@x.com", "Passw0rd")
	_, _ = f.svc.Login(ctx, "a@x.com", "nope")

	assert.Equal(t, success+1, testutil.ToFloat64(metrics.AuthOperations.WithLabelValues("login", metrics.OutcomeSuccess)))
	assert.Equal(t, rejected+1, testutil.ToFloat64(metrics.AuthOperations.WithLabelValues("login", metrics.OutcomeRejected)))
}

func TestNewAuthService_Validation(t *testing.T) {
	store := repository.NewMemoryStore()
	hasher := utils.NewBcryptHasher(4)
	issuer, err := utils.NewTokenIssuer(utils.IssuerConfig{Secret: testSecret, TTL: time.Minute}, nil)
	require.NoError(t, err)
	cfg := DefaultConfig()

	_, err = NewAuthService(nil, hasher, issuer, &mockNotifier{}, cfg)
	assert.Error(t, err)
	_, err = NewAuthService(store, nil, issuer, &mockNotifier{}, cfg)
	assert.Error(t, err)
	_, err = NewAuthService(store, hasher, nil, &mockNotifier{}, cfg)
	assert.Error(t, err)
	_, err = NewAuthService(store, hasher, issuer, nil, cfg)
	assert.Error(t, err)
	_, err = NewAuthService(store, hasher, issuer, &mockNotifier{}, Config{})
	assert.Error(t, err)

	svc, err := NewAuthService(store, hasher, issuer, &mockNotifier{}, cfg)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

// faultyStore fails every email lookup with err.
type faultyStore struct {
	*repository.MemoryStore
	err error
}

func (s *faultyStore) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, s.err
}
