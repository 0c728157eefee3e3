// Package client is the typed HTTP client for the authentication API. It
// owns the wire contract: request shapes, response dialects, and the mapping
// from HTTP failures back into the application error taxonomy. Callers above
// it (internal/flow) never see JSON or status codes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
	"github.com/bell-ha/artist-promotion-platform/internal/model"
	"github.com/bell-ha/artist-promotion-platform/internal/otp"
)

// defaultTimeout bounds every request. The auth modal must never hang
// indefinitely on a stalled backend.
const defaultTimeout = 10 * time.Second

// Client talks to one authentication backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// LoginResult is a confirmed password or Google session.
type LoginResult struct {
	Token    string `json:"access_token"`
	Nickname string `json:"nickname"`
}

// GoogleResult extends LoginResult with what the flow needs to decide whether
// nickname assignment must run before the session may be committed.
type GoogleResult struct {
	Token       string `json:"access_token"`
	Nickname    string `json:"nickname"`
	Email       string `json:"email"`
	NewIdentity bool   `json:"is_new_user"`
}

// Login exchanges an email/password pair for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("credentials", "email and password are required")
	}

	body := map[string]string{"email": email, "password": password}
	var res LoginResult
	if err := c.post(ctx, "/auth/login", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendOTP asks the backend to email a verification code. The purpose selects
// between the sign-up and password-reset challenge endpoints.
func (c *Client) SendOTP(ctx context.Context, purpose otp.Purpose, email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}

	path := "/auth/send-otp"
	if purpose == otp.PurposeReset {
		path = "/auth/forgot-password/send-otp"
	}
	return c.post(ctx, path, url.Values{"email": {email}}, nil, nil)
}

// VerifyOTP submits a code for checking. A mismatch is (false, nil) — an
// expected outcome, not an error. The two endpoints answer in different
// dialects ({"status":"verified"} vs {"verified":true}); both are normalized
// here so callers see a single boolean.
func (c *Client) VerifyOTP(ctx context.Context, purpose otp.Purpose, email, code string) (bool, error) {
	if email == "" {
		return false, apperror.ValidationFailed("email", "email is required")
	}
	if code == "" {
		return false, apperror.ValidationFailed("otp", "verification code is required")
	}

	path := "/auth/verify-otp"
	if purpose == otp.PurposeReset {
		path = "/auth/forgot-password/verify-otp"
	}

	body := map[string]string{"email": email, "otp": code}
	var res struct {
		Status   string `json:"status"`
		Verified bool   `json:"verified"`
	}
	if err := c.post(ctx, path, nil, body, &res); err != nil {
		return false, err
	}
	return res.Verified || res.Status == "verified", nil
}

// SignUp registers a password account. The email must already have completed
// a sign-up verification round server-side.
func (c *Client) SignUp(ctx context.Context, nickname, email, password string) error {
	if nickname == "" || email == "" || password == "" {
		return apperror.ValidationFailed("signup", "nickname, email and password are required")
	}

	body := map[string]string{"nickname": nickname, "email": email, "password": password}
	return c.post(ctx, "/auth/signup", nil, body, nil)
}

// CheckNickname reports whether a nickname is still free.
func (c *Client) CheckNickname(ctx context.Context, nickname string) (bool, error) {
	if nickname == "" {
		return false, apperror.ValidationFailed("nickname", "nickname is required")
	}

	var res struct {
		Available bool `json:"available"`
	}
	err := c.get(ctx, "/auth/check-nickname", url.Values{"nickname": {nickname}}, "", &res)
	if err != nil {
		return false, err
	}
	return res.Available, nil
}

// CommitNickname assigns a nickname to the account identified by email.
func (c *Client) CommitNickname(ctx context.Context, email, nickname string) error {
	if email == "" || nickname == "" {
		return apperror.ValidationFailed("nickname", "email and nickname are required")
	}

	body := map[string]string{"email": email, "nickname": nickname}
	return c.post(ctx, "/auth/update-nickname", nil, body, nil)
}

// ExchangeGoogle trades a Google Identity Services credential for a platform
// session. NewIdentity reports whether the account still needs a nickname.
func (c *Client) ExchangeGoogle(ctx context.Context, credential string) (*GoogleResult, error) {
	if credential == "" {
		return nil, apperror.ValidationFailed("token", "google credential is required")
	}

	body := map[string]string{"token": credential}
	var res GoogleResult
	if err := c.post(ctx, "/auth/google", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResetPassword sets a new password after a completed reset challenge. The
// code is re-submitted alongside the new password; the backend validates it
// one final time.
func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if email == "" || code == "" {
		return apperror.ValidationFailed("reset", "email and verification code are required")
	}
	if len(newPassword) < 6 {
		return apperror.ValidationFailed("new_password", "password must be at least 6 characters")
	}

	body := map[string]string{"email": email, "otp": code, "new_password": newPassword}
	return c.post(ctx, "/auth/forgot-password/reset", nil, body, nil)
}

// Me fetches the profile behind a session token.
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.ValidationFailed("token", "session token is required")
	}

	var user model.User
	if err := c.get(ctx, "/api/me", nil, token, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) post(ctx context.Context, path string, query url.Values, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, path, query, payload, "", out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, bearer string, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, bearer, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, bearer string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: no server-supplied detail to carry.
		return apperror.Remote("")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Remote("the server answered with an unreadable response")
	}
	return nil
}

// remoteError turns a non-2xx response into a taxonomy error. The backend's
// machine-readable error type is mapped back onto the matching sentinel so
// callers can branch with errors.Is exactly as they would on a local error;
// anything unrecognized becomes a RemoteError carrying the server's detail.
func remoteError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}

	detail := ""
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		detail = body.Detail
		if detail == "" {
			detail = body.Message
		}
	}
	if detail == "" {
		detail = fmt.Sprintf("the server answered %s", resp.Status)
	}

	switch body.Error {
	case "verification_failed":
		return apperror.VerificationFailed(detail)
	case "validation_error":
		return apperror.ValidationFailed("", detail)
	case "precondition_failed":
		return apperror.Precondition(detail)
	}
	return apperror.Remote(detail)
}
