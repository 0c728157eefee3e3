// Package handler contains the HTTP layer: request decoding, response
// encoding, and nothing else. Business rules live in internal/service.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
	"github.com/bell-ha/artist-promotion-platform/internal/auth"
	"github.com/bell-ha/artist-promotion-platform/internal/otp"
	"github.com/bell-ha/artist-promotion-platform/internal/service"
)

// AuthHandler exposes the authentication API consumed by the promotional
// front end.
//
// Routes (wired in internal/server):
//
//	POST /auth/login                        → HandleLogin
//	POST /auth/send-otp?email=              → HandleSendSignupOTP
//	POST /auth/verify-otp                   → HandleVerifySignupOTP
//	POST /auth/signup                       → HandleSignUp
//	GET  /auth/check-nickname?nickname=     → HandleCheckNickname
//	POST /auth/update-nickname              → HandleUpdateNickname
//	POST /auth/google                       → HandleGoogle
//	POST /auth/forgot-password/send-otp     → HandleSendResetOTP
//	POST /auth/forgot-password/verify-otp   → HandleVerifyResetOTP
//	POST /auth/forgot-password/reset        → HandleResetPassword
//	GET  /api/me                            → HandleMe (RequireAuth)
//
// Field names are snake_case to match the contract the front end already
// speaks (access_token, is_new_user, new_password).
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// decode unmarshals a JSON request body into dst, answering 400 itself when
// the body is malformed. Returns false if the caller should stop.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON request body"))
		return false
	}
	return true
}

// HandleLogin authenticates an email/password pair.
//
// HTTP: POST /auth/login {email, password} → {access_token, token_type, nickname}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": res.Token,
		"token_type":   "bearer",
		"nickname":     res.Nickname,
	})
}

// HandleSendSignupOTP starts a sign-up email verification round.
//
// HTTP: POST /auth/send-otp?email=a@x.com
func (h *AuthHandler) HandleSendSignupOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, otp.PurposeSignup)
}

// HandleSendResetOTP starts a password-reset verification round.
//
// HTTP: POST /auth/forgot-password/send-otp?email=a@x.com
func (h *AuthHandler) HandleSendResetOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, otp.PurposeReset)
}

func (h *AuthHandler) sendOTP(w http.ResponseWriter, r *http.Request, purpose otp.Purpose) {
	email := r.URL.Query().Get("email")

	if err := h.svc.SendOTP(r.Context(), purpose, email); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "verification code sent"})
}

// HandleVerifySignupOTP confirms a sign-up verification code.
//
// HTTP: POST /auth/verify-otp {email, otp} → {"status": "verified"}
//
// The status-string shape is what the original sign-up endpoint answered;
// clients normalize it together with the reset dialect below.
func (h *AuthHandler) HandleVerifySignupOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ok, err := h.svc.VerifyOTP(r.Context(), otp.PurposeSignup, req.Email, req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}

	status := "invalid"
	if ok {
		status = "verified"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleVerifyResetOTP confirms a password-reset verification code.
//
// HTTP: POST /auth/forgot-password/verify-otp {email, otp} → {"verified": bool}
func (h *AuthHandler) HandleVerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	ok, err := h.svc.VerifyOTP(r.Context(), otp.PurposeReset, req.Email, req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"verified": ok})
}

// HandleSignUp registers a password account. The email must have completed
// OTP verification; no session is returned — the user logs in afterwards.
//
// HTTP: POST /auth/signup {nickname, email, password} → 201
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.SignUp(r.Context(), req.Nickname, req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "account created"})
}

// HandleCheckNickname reports nickname availability.
//
// HTTP: GET /auth/check-nickname?nickname=nova → {"available": bool}
func (h *AuthHandler) HandleCheckNickname(w http.ResponseWriter, r *http.Request) {
	available, err := h.svc.CheckNickname(r.Context(), r.URL.Query().Get("nickname"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// HandleUpdateNickname commits a nickname for an account, typically right
// after a first Google sign-in.
//
// HTTP: POST /auth/update-nickname {email, nickname}
func (h *AuthHandler) HandleUpdateNickname(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Nickname string `json:"nickname"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.CommitNickname(r.Context(), req.Email, req.Nickname); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "nickname updated"})
}

// HandleGoogle exchanges a Google Identity Services credential for a platform
// session.
//
// HTTP: POST /auth/google {token} →
// {access_token, token_type, is_new_user, nickname, email}
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.LoginGoogle(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": res.Token,
		"token_type":   "bearer",
		"is_new_user":  res.NewUser,
		"nickname":     res.Nickname,
		"email":        res.Email,
	})
}

// HandleResetPassword sets a new password after a completed reset challenge.
//
// HTTP: POST /auth/forgot-password/reset {email, otp, new_password}
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		OTP         string `json:"otp"`
		NewPassword string `json:"new_password"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, but be safe.
		w.Header().Set("Content-Type", "application/json")
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed", slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
