// Package model defines the data structures used throughout the application.
package model

import "time"

// PlaceholderPrefix marks an auto-generated display name handed to a Google
// identity that has not completed nickname assignment yet. A session whose
// display name still carries this prefix must not count as logged in.
const PlaceholderPrefix = "User_"

// User represents a registered account.
//
// An account is created either by email/password sign-up (after the email is
// OTP-verified) or by the first Google sign-in. Google-created accounts get a
// placeholder nickname until the user commits a real one; the explicit
// NicknameAssigned flag is the source of truth for that state — callers
// should not infer it from the nickname's spelling.
//
// PasswordHash is the bcrypt hash for password accounts and empty for
// Google-only accounts. It is never serialized.
type User struct {
	ID               string    `json:"id"               db:"id"`
	Email            string    `json:"email"            db:"email"`
	Nickname         string    `json:"nickname"         db:"nickname"`
	NicknameAssigned bool      `json:"nicknameAssigned" db:"nickname_assigned"`
	PasswordHash     string    `json:"-"                db:"password_hash"`
	GoogleID         string    `json:"-"                db:"google_id"` // Google's stable subject claim, empty for password accounts
	Active           bool      `json:"active"           db:"active"`
	CreatedAt        time.Time `json:"createdAt"        db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt"        db:"updated_at"`
}
