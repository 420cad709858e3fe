package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/fennelauth/authcore/internal/postgres"
	"github.com/fennelauth/authcore/internal/value"
	"github.com/fennelauth/authcore/internal/workerpool"
)

// selectColumns lists the columns returned by queries that produce a User, in the exact order scanUser expects.
const selectColumns = `email, password_hash, requires_2fa, two_fa_method, mfa_totp_secret, created_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u           User
		email       string
		twoFAMethod string
	)
	err := row.Scan(&email, &u.PasswordHash, &u.RequiresTwoFA, &twoFAMethod, &u.MFATOTPSecret, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}

	parsedEmail, err := value.ParseEmail(email)
	if err != nil {
		return User{}, fmt.Errorf("parse stored email %q: %w", email, err)
	}
	u.Email = parsedEmail
	u.TwoFAMethod = TwoFAMethod(twoFAMethod)
	return u, nil
}

// PostgresStore is the production Store, backed by Postgres via pgx/pgxpool. Password hashing and verification are
// dispatched through a bounded workerpool.Pool so Argon2id's CPU cost never blocks the caller's goroutine.
type PostgresStore struct {
	db     *pgxpool.Pool
	log    zerolog.Logger
	pool   *workerpool.Pool
	params value.HashParams
}

// NewPostgresStore creates a Postgres-backed Store.
func NewPostgresStore(db *pgxpool.Pool, logger zerolog.Logger, pool *workerpool.Pool, params value.HashParams) *PostgresStore {
	return &PostgresStore{db: db, log: logger, pool: pool, params: params}
}

// AddUser hashes password through the workerpool and persists user with the resulting digest.
func (s *PostgresStore) AddUser(ctx context.Context, user User, password value.Password) error {
	hash, err := workerpool.Do(ctx, s.pool, func() (string, error) {
		return password.Hash(s.params)
	})
	if err != nil {
		return fmt.Errorf("hash password at signup: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO users (email, password_hash, requires_2fa, two_fa_method, mfa_totp_secret, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.Email.String(), hash, user.RequiresTwoFA, string(user.TwoFAMethod), user.MFATOTPSecret, user.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrUserAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, email value.Email) (User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE email = $1`, email.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) ValidateUser(ctx context.Context, email value.Email, plaintext string) error {
	user, err := s.GetUser(ctx, email)
	if err != nil {
		return err
	}

	match, err := workerpool.Do(ctx, s.pool, func() (bool, error) {
		return value.Verify(plaintext, user.PasswordHash)
	})
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}
	return nil
}

// UpdateUser replaces the mutable fields of user. The row is locked for the duration of the
// transaction so two concurrent settings updates for the same account (e.g. racing
// UpdateAccountSettings calls) serialize instead of one silently clobbering the other.
func (s *PostgresStore) UpdateUser(ctx context.Context, user User) error {
	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT true FROM users WHERE email = $1 FOR UPDATE`, user.Email.String()).Scan(&exists)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user row: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE users SET password_hash = $1, requires_2fa = $2, two_fa_method = $3, mfa_totp_secret = $4
			 WHERE email = $5`,
			user.PasswordHash, user.RequiresTwoFA, string(user.TwoFAMethod), user.MFATOTPSecret, user.Email.String(),
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

func (s *PostgresStore) DeleteUser(ctx context.Context, email value.Email) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE email = $1`, email.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, email value.Email, newPassword value.Password) error {
	hash, err := workerpool.Do(ctx, s.pool, func() (string, error) {
		return newPassword.Hash(s.params)
	})
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	tag, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE email = $2`, hash, email.String())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) GetUserSettings(ctx context.Context, email value.Email) (Settings, error) {
	var (
		requiresTwoFA bool
		twoFAMethod   string
	)
	err := s.db.QueryRow(ctx,
		`SELECT requires_2fa, two_fa_method FROM users WHERE email = $1`, email.String(),
	).Scan(&requiresTwoFA, &twoFAMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrUserNotFound
		}
		return Settings{}, fmt.Errorf("query user settings: %w", err)
	}
	return Settings{RequiresTwoFA: requiresTwoFA, TwoFAMethod: TwoFAMethod(twoFAMethod)}, nil
}
