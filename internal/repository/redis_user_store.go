package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/clinicflow/identity-service/internal/model"
)

// RedisUserStore keeps each user as a hash under "<prefix>:user:<id>", an
// email index under "<prefix>:email:<email>" and a creation-ordered sorted
// set under "<prefix>:users". Every write is a Lua script so the existence
// check and the write happen atomically on the server.
//
// Timestamps are stored as Unix microseconds; Lua numbers are doubles and
// stay exact at that resolution.
type RedisUserStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisUserStore(rdb *redis.Client, prefix string) *RedisUserStore {
	if prefix == "" {
		prefix = "identity"
	}
	return &RedisUserStore{rdb: rdb, prefix: prefix, now: time.Now}
}

var _ UserStore = (*RedisUserStore)(nil)

var createUserScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('HSET', KEYS[2], unpack(ARGV, 3))
	redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
	return 1
`)

var setFieldsScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	redis.call('HSET', KEYS[1], unpack(ARGV))
	return 1
`)

var deleteUserScript = redis.NewScript(`
	local email = redis.call('HGET', KEYS[1], 'email')
	if not email then
		return 0
	end
	redis.call('DEL', KEYS[1], ARGV[2] .. email)
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 1
`)

// swapSlotScript checks a token slot and writes on match.
// ARGV: hash field, expiry field, expected digest, now, then field/value
// pairs to write when the slot holds the digest and expires after now.
var swapSlotScript = redis.NewScript(`
	local hashField = ARGV[1]
	local expField = ARGV[2]
	local current = redis.call('HGET', KEYS[1], hashField)
	if not current or current == '' or current ~= ARGV[3] then
		return 0
	end
	local exp = tonumber(redis.call('HGET', KEYS[1], expField))
	if exp == nil or exp <= tonumber(ARGV[4]) then
		return 0
	end
	redis.call('HSET', KEYS[1], unpack(ARGV, 5))
	return 1
`)

var clearSlotIfScript = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], ARGV[1])
	if not current or current ~= ARGV[3] then
		return 0
	end
	redis.call('HSET', KEYS[1], ARGV[1], '', ARGV[2], '', 'updated_at', ARGV[4])
	return 1
`)

func (s *RedisUserStore) userKey(id string) string     { return s.prefix + ":user:" + id }
func (s *RedisUserStore) emailKey(email string) string { return s.prefix + ":email:" + email }
func (s *RedisUserStore) indexKey() string             { return s.prefix + ":users" }

func (s *RedisUserStore) Create(ctx context.Context, u *model.User) error {
	args := []any{u.ID, u.CreatedAt.UnixMicro()}
	args = append(args, userFields(u)...)
	n, err := createUserScript.Run(ctx, s.rdb,
		[]string{s.emailKey(u.Email), s.userKey(u.ID), s.indexKey()}, args...).Int()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", "create user").Wrap(err)
	}
	if n == 0 {
		return ErrEmailExists
	}
	return nil
}

func (s *RedisUserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	fields, err := s.rdb.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").With("operation", "get user by id").Wrap(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseUserFields(fields)
}

func (s *RedisUserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	id, err := s.rdb.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return s.GetByID(ctx, id)
}

func (s *RedisUserStore) List(ctx context.Context) ([]model.User, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").With("operation", "list user ids").Wrap(err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.userKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").With("operation", "list users").Wrap(err)
	}
	users := make([]model.User, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// deleted between ZRANGE and HGETALL
			continue
		}
		u, err := parseUserFields(fields)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func (s *RedisUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.setFields(ctx, id, "update password", "password_hash", passwordHash)
}

func (s *RedisUserStore) UpdateRole(ctx context.Context, id string, role model.Role) error {
	return s.setFields(ctx, id, "update role", "role", string(role))
}

func (s *RedisUserStore) Delete(ctx context.Context, id string) error {
	n, err := deleteUserScript.Run(ctx, s.rdb,
		[]string{s.userKey(id), s.indexKey()}, id, s.prefix+":email:").Int()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", "delete user").Wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisUserStore) SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.setFields(ctx, id, "set refresh token",
		"refresh_hash", tokenHash, "refresh_exp", formatMicros(expiresAt))
}

func (s *RedisUserStore) SwapRefreshToken(ctx context.Context, id, currentHash, newHash string, newExpiresAt, now time.Time) error {
	return s.swapSlot(ctx, id, "swap refresh token", "refresh_hash", "refresh_exp", currentHash, now,
		"refresh_hash", newHash, "refresh_exp", formatMicros(newExpiresAt))
}

func (s *RedisUserStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.setFields(ctx, id, "clear refresh token", "refresh_hash", "", "refresh_exp", "")
}

func (s *RedisUserStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.setFields(ctx, id, "set reset token",
		"reset_hash", tokenHash, "reset_exp", formatMicros(expiresAt))
}

func (s *RedisUserStore) ClearResetToken(ctx context.Context, id, tokenHash string) error {
	err := clearSlotIfScript.Run(ctx, s.rdb, []string{s.userKey(id)},
		"reset_hash", "reset_exp", tokenHash, formatMicros(s.now())).Err()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", "clear reset token").Wrap(err)
	}
	return nil
}

func (s *RedisUserStore) RedeemResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	return s.swapSlot(ctx, id, "redeem reset token", "reset_hash", "reset_exp", tokenHash, now,
		"password_hash", passwordHash, "reset_hash", "", "reset_exp", "")
}

func (s *RedisUserStore) setFields(ctx context.Context, id, operation string, pairs ...any) error {
	pairs = append(pairs, "updated_at", formatMicros(s.now()))
	n, err := setFieldsScript.Run(ctx, s.rdb, []string{s.userKey(id)}, pairs...).Int()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", operation).Wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisUserStore) swapSlot(ctx context.Context, id, operation, hashField, expField, expected string, now time.Time, writes ...any) error {
	args := []any{hashField, expField, expected, formatMicros(now)}
	args = append(args, writes...)
	args = append(args, "updated_at", formatMicros(s.now()))
	n, err := swapSlotScript.Run(ctx, s.rdb, []string{s.userKey(id)}, args...).Int()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", operation).Wrap(err)
	}
	if n == 0 {
		return ErrStaleToken
	}
	return nil
}

func userFields(u *model.User) []any {
	return []any{
		"id", u.ID,
		"full_name", u.FullName,
		"email", u.Email,
		"password_hash", u.PasswordHash,
		"role", string(u.Role),
		"refresh_hash", u.RefreshTokenHash,
		"refresh_exp", formatOptionalMicros(u.RefreshTokenExpiresAt),
		"reset_hash", u.ResetTokenHash,
		"reset_exp", formatOptionalMicros(u.ResetTokenExpiresAt),
		"created_at", formatMicros(u.CreatedAt),
		"updated_at", formatMicros(u.UpdatedAt),
	}
}

func parseUserFields(f map[string]string) (*model.User, error) {
	u := &model.User{
		ID:               f["id"],
		FullName:         f["full_name"],
		Email:            f["email"],
		PasswordHash:     f["password_hash"],
		Role:             model.Role(f["role"]),
		RefreshTokenHash: f["refresh_hash"],
		ResetTokenHash:   f["reset_hash"],
	}
	var err error
	if u.RefreshTokenExpiresAt, err = parseOptionalMicros(f["refresh_exp"]); err != nil {
		return nil, corrupt(u.ID, "refresh_exp", err)
	}
	if u.ResetTokenExpiresAt, err = parseOptionalMicros(f["reset_exp"]); err != nil {
		return nil, corrupt(u.ID, "reset_exp", err)
	}
	created, err := parseOptionalMicros(f["created_at"])
	if err != nil || created == nil {
		return nil, corrupt(u.ID, "created_at", err)
	}
	u.CreatedAt = *created
	updated, err := parseOptionalMicros(f["updated_at"])
	if err != nil || updated == nil {
		return nil, corrupt(u.ID, "updated_at", err)
	}
	u.UpdatedAt = *updated
	return u, nil
}

func corrupt(id, field string, err error) error {
	return oops.Code("STORE_CORRUPT_RECORD").
		With("user_id", id).
		With("field", field).
		Errorf("invalid stored value: %v", err)
}

func formatMicros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func formatOptionalMicros(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatMicros(*t)
}

func parseOptionalMicros(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.UnixMicro(n).UTC()
	return &t, nil
}
