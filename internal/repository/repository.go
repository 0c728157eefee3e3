// Package repository declares the storage interfaces consumed by the service
// layer. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/bell-ha/artist-promotion-platform/internal/model"
)

// UserRepository is the persistence contract for accounts.
//
// Create and the setters report apperror.Conflict for uniqueness violations
// (email, nickname) and apperror.NotFound when the target row is missing, so
// the service layer can branch without knowing the storage engine.
type UserRepository interface {
	// Create inserts a new account and fills in ID and timestamps.
	Create(ctx context.Context, user *model.User) error

	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// NicknameTaken reports whether any account already holds the nickname.
	NicknameTaken(ctx context.Context, nickname string) (bool, error)

	// SetNickname assigns a nickname to the account with the given email and
	// marks it as user-chosen.
	SetNickname(ctx context.Context, email, nickname string) error

	// SetPassword replaces the stored password hash for the account.
	SetPassword(ctx context.Context, email, passwordHash string) error

	// UpsertGoogle returns the account bound to the Google subject, creating
	// it with a placeholder nickname on first sight of the identity.
	UpsertGoogle(ctx context.Context, googleID, email string) (*model.User, error)
}
