package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
	"github.com/bell-ha/artist-promotion-platform/internal/model"
	"github.com/bell-ha/artist-promotion-platform/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, nickname, nickname_assigned, password_hash,
	COALESCE(google_id, ''), active, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Nickname,
		&u.NicknameAssigned,
		&u.PasswordHash,
		&u.GoogleID,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new account. The email and nickname are checked for
// conflicts first so the caller gets an apperror instead of a raw driver
// error.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	var exists int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, user.Email,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking email %s: %w", user.Email, err)
	}
	if exists > 0 {
		return apperror.Conflict("user", user.Email)
	}

	taken, err := db.NicknameTaken(ctx, user.Nickname)
	if err != nil {
		return err
	}
	if taken {
		return apperror.Conflict("nickname", user.Nickname)
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	var googleID any
	if user.GoogleID != "" {
		googleID = user.GoogleID
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, nickname, nickname_assigned, password_hash, google_id, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Nickname,
		user.NicknameAssigned,
		user.PasswordHash,
		googleID,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID. Returns apperror.NotFound when no
// row matches.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email. Returns apperror.NotFound when no row
// matches.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email %s: %w", email, err)
	}
	return u, nil
}

// NicknameTaken reports whether any account already holds the nickname.
func (db *DB) NicknameTaken(ctx context.Context, nickname string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE nickname = ?`, nickname,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking nickname %s: %w", nickname, err)
	}
	return count > 0, nil
}

// SetNickname assigns a user-chosen nickname to the account with the given
// email. The uniqueness re-check runs here too — the availability answer the
// client saw earlier may have gone stale.
func (db *DB) SetNickname(ctx context.Context, email, nickname string) error {
	taken, err := db.NicknameTaken(ctx, nickname)
	if err != nil {
		return err
	}
	if taken {
		return apperror.Conflict("nickname", nickname)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET nickname = ?, nickname_assigned = 1, updated_at = ? WHERE email = ?`,
		nickname, time.Now(), email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting nickname for %s: %w", email, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: setting nickname for %s: %w", email, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", email)
	}

	return nil
}

// SetPassword replaces the stored password hash for the account.
func (db *DB) SetPassword(ctx context.Context, email, passwordHash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?`,
		passwordHash, time.Now(), email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting password for %s: %w", email, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: setting password for %s: %w", email, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", email)
	}

	return nil
}

// UpsertGoogle returns the account bound to the Google subject, creating it
// on first sight. Newly created accounts get a placeholder nickname
// ("User_<xid>") and nickname_assigned = 0; the flow replaces it once the
// user commits a real one.
func (db *DB) UpsertGoogle(ctx context.Context, googleID, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = ?`, googleID,
	))
	if err == nil {
		return u, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: looking up google user %s: %w", googleID, err)
	}

	// The email may already exist as a password account — bind the Google
	// identity to it rather than creating a duplicate.
	existing, err := db.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET google_id = ?, updated_at = ? WHERE id = ?`,
			googleID, time.Now(), existing.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: binding google identity to %s: %w", existing.ID, err)
		}
		existing.GoogleID = googleID
		return existing, nil
	}

	user := &model.User{
		Email:            email,
		Nickname:         model.PlaceholderPrefix + xid.New().String(),
		NicknameAssigned: false,
		GoogleID:         googleID,
		Active:           true,
	}
	if err := db.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}
