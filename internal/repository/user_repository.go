package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/samber/oops"

	"github.com/clinicflow/identity-service/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

const userColumns = "id,full_name,email,password_hash,role,refresh_token_hash,refresh_token_expires_at,reset_token_hash,reset_token_expires_at,created_at,updated_at"

// UserRepo is the MySQL credential store backed by the `users` table.
// The DSN must set clientFoundRows=true so that RowsAffected counts matched
// rows; database.Open does this.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var _ UserStore = (*UserRepo)(nil)

// Create inserts a user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, full_name, email, password_hash, role, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		u.ID, u.FullName, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrEmailExists
		}
		return oops.Code("STORE_WRITE_FAILED").With("operation", "insert user").Wrap(err)
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, wrapRead(err, "get user by id")
	}
	return u, nil
}

// GetByEmail fetches a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	u, err := scanUser(row)
	if err != nil {
		return nil, wrapRead(err, "get user by email")
	}
	return u, nil
}

// List returns every user ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").With("operation", "list users").Wrap(err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("STORE_READ_FAILED").With("operation", "scan user").Wrap(err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_READ_FAILED").With("operation", "list users").Wrap(err)
	}
	return users, nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, "update password", ErrNotFound,
		"UPDATE users SET password_hash=?, updated_at=UTC_TIMESTAMP(6) WHERE id=?",
		passwordHash, id)
}

func (r *UserRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	return r.execOne(ctx, "update role", ErrNotFound,
		"UPDATE users SET role=?, updated_at=UTC_TIMESTAMP(6) WHERE id=?",
		string(role), id)
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete user", ErrNotFound, "DELETE FROM users WHERE id=?", id)
}

func (r *UserRepo) SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.execOne(ctx, "set refresh token", ErrNotFound,
		"UPDATE users SET refresh_token_hash=?, refresh_token_expires_at=?, updated_at=UTC_TIMESTAMP(6) WHERE id=?",
		tokenHash, expiresAt.UTC(), id)
}

// SwapRefreshToken rotates the refresh slot with a single conditional
// UPDATE; InnoDB's row lock on the matched row serializes concurrent swaps.
func (r *UserRepo) SwapRefreshToken(ctx context.Context, id, currentHash, newHash string, newExpiresAt, now time.Time) error {
	return r.execOne(ctx, "swap refresh token", ErrStaleToken,
		"UPDATE users SET refresh_token_hash=?, refresh_token_expires_at=?, updated_at=UTC_TIMESTAMP(6) "+
			"WHERE id=? AND refresh_token_hash=? AND refresh_token_expires_at > ?",
		newHash, newExpiresAt.UTC(), id, currentHash, now.UTC())
}

func (r *UserRepo) ClearRefreshToken(ctx context.Context, id string) error {
	return r.execOne(ctx, "clear refresh token", ErrNotFound,
		"UPDATE users SET refresh_token_hash=NULL, refresh_token_expires_at=NULL, updated_at=UTC_TIMESTAMP(6) WHERE id=?",
		id)
}

func (r *UserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.execOne(ctx, "set reset token", ErrNotFound,
		"UPDATE users SET reset_token_hash=?, reset_token_expires_at=?, updated_at=UTC_TIMESTAMP(6) WHERE id=?",
		tokenHash, expiresAt.UTC(), id)
}

func (r *UserRepo) ClearResetToken(ctx context.Context, id, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=NULL, reset_token_expires_at=NULL, updated_at=UTC_TIMESTAMP(6) WHERE id=? AND reset_token_hash=?",
		id, tokenHash)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", "clear reset token").Wrap(err)
	}
	return nil
}

func (r *UserRepo) RedeemResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) error {
	return r.execOne(ctx, "redeem reset token", ErrStaleToken,
		"UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_token_expires_at=NULL, updated_at=UTC_TIMESTAMP(6) "+
			"WHERE id=? AND reset_token_hash=? AND reset_token_expires_at > ?",
		passwordHash, id, tokenHash, now.UTC())
}

// execOne runs a statement expected to touch exactly one row and returns
// miss when it matched none.
func (r *UserRepo) execOne(ctx context.Context, operation string, miss error, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", operation).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").With("operation", operation).Wrap(err)
	}
	if n == 0 {
		return miss
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u           model.User
		role        string
		refreshHash sql.NullString
		refreshExp  sql.NullTime
		resetHash   sql.NullString
		resetExp    sql.NullTime
	)
	if err := s.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &role,
		&refreshHash, &refreshExp, &resetHash, &resetExp, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.RefreshTokenHash = refreshHash.String
	if refreshExp.Valid {
		t := refreshExp.Time.UTC()
		u.RefreshTokenExpiresAt = &t
	}
	u.ResetTokenHash = resetHash.String
	if resetExp.Valid {
		t := resetExp.Time.UTC()
		u.ResetTokenExpiresAt = &t
	}
	return &u, nil
}

func wrapRead(err error, operation string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return oops.Code("STORE_READ_FAILED").With("operation", operation).Wrap(err)
}
