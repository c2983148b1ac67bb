package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicflow/identity-service/internal/model"
	"github.com/clinicflow/identity-service/internal/queue"
	"github.com/clinicflow/identity-service/internal/repository"
	"github.com/clinicflow/identity-service/internal/utils"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type fixture struct {
	svc      *AuthService
	store    *repository.MemoryStore
	clock    *fakeClock
	notifier *mockNotifier
	issuer   *utils.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, repository.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store repository.UserStore) *fixture {
	t.Helper()
	clock := newFakeClock()
	issuer, err := utils.NewTokenIssuer(utils.IssuerConfig{
		Secret:   testSecret,
		Issuer:   "identity-test",
		Audience: "clinicflow",
		TTL:      15 * time.Minute,
	}, clock.Now)
	require.NoError(t, err)

	notifier := &mockNotifier{}
	svc, err := NewAuthService(store, utils.NewBcryptHasher(bcrypt.MinCost), issuer, notifier,
		Config{RefreshTTL: 7 * 24 * time.Hour, ResetTTL: time.Hour, ResetURLBase: "https://app.test/reset"},
		WithClock(clock.Now))
	require.NoError(t, err)

	f := &fixture{svc: svc, clock: clock, notifier: notifier, issuer: issuer}
	if mem, ok := store.(*repository.MemoryStore); ok {
		f.store = mem
	}
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string, role model.Role) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		FullName: name,
		Email:    email,
		Password: password,
		Role:     string(role),
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), email, password)
	require.NoError(t, err)
	return res
}

// expectResetMail records the raw token of every reset notice sent.
func (f *fixture) expectResetMail() func() string {
	var (
		mu   sync.Mutex
		last string
	)
	f.notifier.On("NotifyPasswordReset", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			last = args.Get(1).(queue.PasswordResetRequested).ResetToken
		}).
		Return(nil)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func (f *fixture) stored(t *testing.T, id string) *model.User {
	t.Helper()
	require.NotNil(t, f.store, "fixture was built without a memory store")
	u, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}
