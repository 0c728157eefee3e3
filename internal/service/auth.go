// Package service holds the authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth/otp
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt),
//	                     otp.Store (challenges), GoogleVerifier (identity)
//
// Every rule a client could skip is enforced here, not in the handlers:
// sign-up requires a consumed OTP confirmation, password reset re-validates
// the code, nickname commit re-checks uniqueness.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
	"github.com/bell-ha/artist-promotion-platform/internal/auth"
	"github.com/bell-ha/artist-promotion-platform/internal/model"
	"github.com/bell-ha/artist-promotion-platform/internal/otp"
	"github.com/bell-ha/artist-promotion-platform/internal/repository"
)

// GoogleVerifier validates an external Google credential and returns the
// identity it asserts. *auth.GoogleProvider satisfies it; tests substitute a
// fake.
type GoogleVerifier interface {
	VerifyCredential(ctx context.Context, credential string) (*auth.GoogleUser, error)
}

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	google    GoogleVerifier
	codes     *otp.Store
	mailer    otp.Mailer
	otpTTL    time.Duration
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Called from internal/server when wiring the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	google GoogleVerifier,
	codes *otp.Store,
	mailer otp.Mailer,
	otpTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		google:    google,
		codes:     codes,
		mailer:    mailer,
		otpTTL:    otpTTL,
		logger:    logger,
	}
}

// AuthResult is returned by Login: the issued JWT plus the display name the
// client persists alongside it.
type AuthResult struct {
	Token    string
	Nickname string
}

// GoogleAuthResult is returned by LoginGoogle. NewUser reports that the
// account has no user-chosen nickname yet — the client must run nickname
// assignment before treating the token as a logged-in session.
type GoogleAuthResult struct {
	Token    string
	Nickname string
	Email    string
	NewUser  bool
}

// Login authenticates an email/password pair and issues a token.
//
// Wrong email and wrong password produce the same message so the endpoint
// does not leak which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil || user.PasswordHash == "" {
		return nil, apperror.ValidationFailed("email", "invalid email or password")
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.ValidationFailed("email", "invalid email or password")
	}

	if !user.Active {
		return nil, apperror.Forbidden("this account has been deactivated")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &AuthResult{Token: token, Nickname: user.Nickname}, nil
}

// SendOTP starts (or restarts) a verification challenge for the given
// purpose. Sign-up refuses emails that already have an account; password
// reset refuses emails that don't.
func (s *AuthService) SendOTP(ctx context.Context, purpose otp.Purpose, email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return apperror.ValidationFailed("email", "a valid email is required")
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch purpose {
	case otp.PurposeSignup:
		if err == nil {
			return apperror.Conflict("user", email)
		}
	case otp.PurposeReset:
		if err != nil {
			return apperror.NotFound("user", email)
		}
	default:
		return apperror.ValidationFailed("purpose", "unknown verification purpose")
	}

	code, err := otp.Generate()
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}

	if err := s.codes.Create(ctx, purpose, email, code, s.otpTTL); err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}

	if err := s.mailer.SendCode(ctx, email, code, purpose); err != nil {
		return fmt.Errorf("service/auth: delivering code to %s: %w", email, err)
	}

	s.logger.Info("verification code sent",
		slog.String("email", email),
		slog.String("purpose", string(purpose)),
	)

	return nil
}

// VerifyOTP checks a submitted code. A plain mismatch is (false, nil) — the
// challenge stays open. Expired challenges and exhausted attempt budgets come
// back as apperror.VerificationFailed.
func (s *AuthService) VerifyOTP(ctx context.Context, purpose otp.Purpose, email, code string) (bool, error) {
	if email == "" {
		return false, apperror.ValidationFailed("email", "email is required")
	}
	if code == "" {
		return false, apperror.ValidationFailed("otp", "verification code is required")
	}

	ok, err := s.codes.Verify(ctx, purpose, email, code)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SignUp creates a password account. The email must hold a confirmed sign-up
// challenge; the confirmation is consumed so one OTP round cannot authorize
// two registrations. No session is issued — the user logs in afterwards.
func (s *AuthService) SignUp(ctx context.Context, nickname, email, password string) error {
	if nickname == "" {
		return apperror.ValidationFailed("nickname", "nickname is required")
	}
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if len(password) < auth.MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}

	verified, err := s.codes.ConsumeVerified(ctx, otp.PurposeSignup, email)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	if !verified {
		return apperror.Precondition("email has not completed verification")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Email:            email,
		Nickname:         nickname,
		NicknameAssigned: true,
		PasswordHash:     hash,
		Active:           true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}

	// The challenge served its purpose; drop the leftovers.
	_ = s.codes.Invalidate(ctx, otp.PurposeSignup, email)

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("nickname", nickname),
	)

	return nil
}

// CheckNickname reports whether the candidate is free to take.
func (s *AuthService) CheckNickname(ctx context.Context, candidate string) (bool, error) {
	if candidate == "" {
		return false, apperror.ValidationFailed("nickname", "nickname is required")
	}

	taken, err := s.users.NicknameTaken(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("service/auth: %w", err)
	}
	return !taken, nil
}

// CommitNickname assigns a nickname to the account with the given email.
// Uniqueness is re-checked in storage regardless of what the client saw.
func (s *AuthService) CommitNickname(ctx context.Context, email, nickname string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if nickname == "" {
		return apperror.ValidationFailed("nickname", "nickname is required")
	}

	if err := s.users.SetNickname(ctx, email, nickname); err != nil {
		return err
	}

	s.logger.Info("nickname committed",
		slog.String("email", email),
		slog.String("nickname", nickname),
	)

	return nil
}

// LoginGoogle exchanges a Google credential for a platform session.
//
// The account is created on first sight of the identity, with a placeholder
// nickname and NewUser = true; the token it returns is valid for the
// nickname-commit call but the client must not persist a session until that
// commit succeeds.
func (s *AuthService) LoginGoogle(ctx context.Context, credential string) (*GoogleAuthResult, error) {
	if credential == "" {
		return nil, apperror.ValidationFailed("token", "Google credential is required")
	}

	gUser, err := s.google.VerifyCredential(ctx, credential)
	if err != nil {
		s.logger.Warn("google credential rejected", slog.String("error", err.Error()))
		return nil, apperror.ValidationFailed("token", "Google sign-in could not be verified")
	}

	user, err := s.users.UpsertGoogle(ctx, gUser.Subject, gUser.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting google user: %w", err)
	}

	if !user.Active {
		return nil, apperror.Forbidden("this account has been deactivated")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in via Google",
		slog.String("userID", user.ID),
		slog.Bool("newUser", !user.NicknameAssigned),
	)

	return &GoogleAuthResult{
		Token:    token,
		Nickname: user.Nickname,
		Email:    user.Email,
		NewUser:  !user.NicknameAssigned,
	}, nil
}

// ResetPassword sets a new password for an account that completed a
// password-reset challenge. The code travels with the request and is
// re-validated here — the earlier verify call alone is not enough.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if code == "" {
		return apperror.ValidationFailed("otp", "verification code is required")
	}
	if len(newPassword) < auth.MinPasswordLength {
		return apperror.ValidationFailed("new_password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}

	ok, err := s.codes.Verify(ctx, otp.PurposeReset, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.VerificationFailed("")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}

	if err := s.users.SetPassword(ctx, email, hash); err != nil {
		return err
	}

	_ = s.codes.Invalidate(ctx, otp.PurposeReset, email)

	s.logger.Info("password reset", slog.String("email", email))

	return nil
}

// GetUserByID returns the user for the given internal ID. Used by /api/me
// after the middleware validates the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return user, nil
}
