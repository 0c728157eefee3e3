package flow

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
	"github.com/bell-ha/artist-promotion-platform/internal/client"
	"github.com/bell-ha/artist-promotion-platform/internal/session"
)

// The controller is exercised against a fake backend speaking the real wire
// contract, with a real client and a real file-backed session store. Codes
// are fixed: 111111 verifies sign-up challenges, 222222 reset challenges.

const (
	signupCode = "111111"
	resetCode  = "222222"
)

// fakeBackend emulates the auth API. Requests can be held at a path: the
// handler reports arrival on reached and waits for release, which lets tests
// act while a request is in flight.
type fakeBackend struct {
	mu       sync.Mutex
	hits     map[string]int
	taken    map[string]bool // nicknames already in use
	holdPath string
	reached  chan struct{}
	release  chan struct{}
}

func (b *fakeBackend) hold(path string) (reached, release chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdPath = path
	b.reached = make(chan struct{}, 1)
	b.release = make(chan struct{})
	return b.reached, b.release
}

func (b *fakeBackend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.hits[r.URL.Path]++
	holdPath, reached, release := b.holdPath, b.reached, b.release
	b.mu.Unlock()

	if r.URL.Path == holdPath {
		reached <- struct{}{}
		<-release
	}

	var req map[string]string
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	send := func(status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
	reject := func(errType, detail string, status int) {
		send(status, map[string]string{"error": errType, "message": detail, "detail": detail})
	}

	switch r.URL.Path {
	case "/auth/login":
		if req["password"] != "correct-password" {
			reject("validation_error", "invalid email or password", http.StatusBadRequest)
			return
		}
		send(http.StatusOK, map[string]string{"access_token": "tok-login", "nickname": "mina"})

	case "/auth/send-otp", "/auth/forgot-password/send-otp":
		send(http.StatusOK, map[string]string{"message": "verification code sent"})

	case "/auth/verify-otp":
		status := "invalid"
		if req["otp"] == signupCode {
			status = "verified"
		}
		send(http.StatusOK, map[string]string{"status": status})

	case "/auth/forgot-password/verify-otp":
		send(http.StatusOK, map[string]bool{"verified": req["otp"] == resetCode})

	case "/auth/signup":
		send(http.StatusCreated, map[string]string{"message": "account created"})

	case "/auth/check-nickname":
		b.mu.Lock()
		taken := b.taken[r.URL.Query().Get("nickname")]
		b.mu.Unlock()
		send(http.StatusOK, map[string]bool{"available": !taken})

	case "/auth/update-nickname":
		send(http.StatusOK, map[string]string{"message": "nickname updated"})

	case "/auth/forgot-password/reset":
		if req["otp"] != resetCode {
			reject("verification_failed", "the verification code did not match", http.StatusBadRequest)
			return
		}
		send(http.StatusOK, map[string]string{"message": "password updated"})

	case "/auth/google":
		switch req["token"] {
		case "google-new":
			send(http.StatusOK, map[string]any{
				"access_token": "tok-google",
				"is_new_user":  true,
				"nickname":     "User_cv9q2k3f",
				"email":        "new@example.com",
			})
		case "google-known":
			send(http.StatusOK, map[string]any{
				"access_token": "tok-google",
				"is_new_user":  false,
				"nickname":     "nova",
				"email":        "known@example.com",
			})
		default:
			reject("validation_error", "google sign-in was rejected", http.StatusBadRequest)
		}

	default:
		reject("not_found", "no such endpoint", http.StatusNotFound)
	}
}

type testEnv struct {
	ctrl    *Controller
	store   *session.Store
	backend *fakeBackend

	mu    sync.Mutex
	notes []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := &fakeBackend{hits: make(map[string]int), taken: make(map[string]bool)}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	env := &testEnv{
		backend: backend,
		store:   session.NewStore(filepath.Join(t.TempDir(), "session.json")),
	}

	notify := NotifierFunc(func(msg string) {
		env.mu.Lock()
		env.notes = append(env.notes, msg)
		env.mu.Unlock()
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.ctrl = NewController(client.New(srv.URL), env.store, notify, logger)
	return env
}

func (e *testEnv) lastNote(t *testing.T) string {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.notes)
	return e.notes[len(e.notes)-1]
}

func (e *testEnv) restoredSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := e.store.Restore()
	require.NoError(t, err)
	return sess
}

func TestSignInCommitsSessionAndCloses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	env.ctrl.SetEmail("a@example.com")
	env.ctrl.SetPassword("correct-password")
	require.NoError(t, env.ctrl.SignIn(ctx))

	sess := env.restoredSession(t)
	require.NotNil(t, sess)
	assert.Equal(t, "tok-login", sess.Token)
	assert.Equal(t, "mina", sess.DisplayName)
	assert.False(t, env.ctrl.State().Visible)
}

func TestSignInRejectedLeavesModalOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	env.ctrl.SetEmail("a@example.com")
	env.ctrl.SetPassword("wrong")

	err := env.ctrl.SignIn(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "invalid email or password", env.lastNote(t))
	assert.True(t, env.ctrl.State().Visible)
	assert.Nil(t, env.restoredSession(t))
}

// Full sign-up sequence: send code, confirm it, check the nickname, register,
// then sign in with the new credentials.
func TestSignUpFullSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("new@example.com")
	env.ctrl.SetPassword("correct-password")

	require.NoError(t, env.ctrl.SendSignupCode(ctx))
	assert.Equal(t, GateSent, env.ctrl.State().SignupChallenge)

	require.NoError(t, env.ctrl.ConfirmSignupCode(ctx, signupCode))
	assert.Equal(t, GateVerified, env.ctrl.State().SignupChallenge)

	env.ctrl.ProposeNickname("nova")
	require.NoError(t, env.ctrl.CheckNickname(ctx))
	assert.True(t, env.ctrl.State().NicknameAvailable)

	require.NoError(t, env.ctrl.SignUp(ctx))

	// No session yet; the modal switched to sign-in with the email kept.
	st := env.ctrl.State()
	assert.Nil(t, env.restoredSession(t))
	assert.Equal(t, ModeSignIn, st.Mode)
	assert.Equal(t, "new@example.com", st.Email)
	assert.Equal(t, "account created — sign in to continue", env.lastNote(t))

	env.ctrl.SetPassword("correct-password")
	require.NoError(t, env.ctrl.SignIn(ctx))
	require.NotNil(t, env.restoredSession(t))
}

func TestSignUpRequiresVerifiedEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("new@example.com")
	env.ctrl.SetPassword("correct-password")
	env.ctrl.ProposeNickname("nova")
	require.NoError(t, env.ctrl.CheckNickname(ctx))

	err := env.ctrl.SignUp(ctx)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)
	assert.Equal(t, 0, env.backend.hitCount("/auth/signup"))
}

func TestSignUpRequiresCheckedNickname(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("new@example.com")
	env.ctrl.SetPassword("correct-password")
	require.NoError(t, env.ctrl.SendSignupCode(ctx))
	require.NoError(t, env.ctrl.ConfirmSignupCode(ctx, signupCode))

	// Never checked.
	env.ctrl.ProposeNickname("nova")
	err := env.ctrl.SignUp(ctx)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)

	// Checked, then edited: the verdict no longer vouches for the new value.
	require.NoError(t, env.ctrl.CheckNickname(ctx))
	env.ctrl.ProposeNickname("different")
	err = env.ctrl.SignUp(ctx)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)
	assert.Equal(t, 0, env.backend.hitCount("/auth/signup"))
}

func TestEditingEmailInvalidatesSignupChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("first@example.com")
	require.NoError(t, env.ctrl.SendSignupCode(ctx))
	require.NoError(t, env.ctrl.ConfirmSignupCode(ctx, signupCode))
	require.Equal(t, GateVerified, env.ctrl.State().SignupChallenge)

	env.ctrl.SetEmail("second@example.com")
	assert.Equal(t, GateIdle, env.ctrl.State().SignupChallenge)
}

func TestWrongCodeLeavesChallengeOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("new@example.com")
	require.NoError(t, env.ctrl.SendSignupCode(ctx))

	err := env.ctrl.ConfirmSignupCode(ctx, "000000")
	assert.ErrorIs(t, err, apperror.ErrVerificationFailed)
	assert.Equal(t, GateSent, env.ctrl.State().SignupChallenge)

	// A retry with the right code still succeeds.
	require.NoError(t, env.ctrl.ConfirmSignupCode(ctx, signupCode))
	assert.Equal(t, GateVerified, env.ctrl.State().SignupChallenge)
}

// First Google sign-in: the modal hands over to nickname setup, and the
// session is committed only after the nickname lands — never with the
// server-minted placeholder.
func TestGoogleSignInNewIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	require.NoError(t, env.ctrl.GoogleSignIn(ctx, "google-new"))

	st := env.ctrl.State()
	assert.False(t, st.Visible)
	assert.True(t, st.NicknameSetup)
	assert.Nil(t, env.restoredSession(t), "no session before the nickname is assigned")

	env.ctrl.ProposeNickname("nova")
	require.NoError(t, env.ctrl.CheckNickname(ctx))
	require.NoError(t, env.ctrl.CommitNickname(ctx))

	sess := env.restoredSession(t)
	require.NotNil(t, sess)
	assert.Equal(t, "tok-google", sess.Token)
	assert.Equal(t, "nova", sess.DisplayName)
	assert.False(t, env.ctrl.State().NicknameSetup)
}

func TestGoogleSignInKnownIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	require.NoError(t, env.ctrl.GoogleSignIn(ctx, "google-known"))

	sess := env.restoredSession(t)
	require.NotNil(t, sess)
	assert.Equal(t, "nova", sess.DisplayName)
	assert.False(t, env.ctrl.State().NicknameSetup)
	assert.False(t, env.ctrl.State().Visible)
}

func TestCommitNicknameRequiresAvailabilityVerdict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	require.NoError(t, env.ctrl.GoogleSignIn(ctx, "google-new"))

	env.ctrl.ProposeNickname("nova")
	err := env.ctrl.CommitNickname(ctx)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)
	assert.Nil(t, env.restoredSession(t))
}

func TestCloseDuringNicknameSetupDiscardsPendingIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	require.NoError(t, env.ctrl.GoogleSignIn(ctx, "google-new"))
	require.True(t, env.ctrl.State().NicknameSetup)

	env.ctrl.Close()

	err := env.ctrl.CommitNickname(ctx)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)
	assert.Nil(t, env.restoredSession(t))
}

// Forgot-password sequence ending back at sign-in with the email prefilled.
func TestForgotPasswordFullSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	env.ctrl.SwitchMode(ModeForgot)
	env.ctrl.SetResetEmail("a@example.com")

	require.NoError(t, env.ctrl.SendResetCode(ctx))
	require.NoError(t, env.ctrl.ConfirmResetCode(ctx, resetCode))
	assert.Equal(t, GateVerified, env.ctrl.State().ResetChallenge)

	require.NoError(t, env.ctrl.ResetPassword(ctx, "fresh-password"))

	st := env.ctrl.State()
	assert.Equal(t, ModeSignIn, st.Mode)
	assert.Equal(t, "a@example.com", st.Email)
	assert.Equal(t, GateIdle, st.ResetChallenge)
	assert.Equal(t, "password updated — sign in with your new password", env.lastNote(t))
	assert.Nil(t, env.restoredSession(t), "a reset never signs the user in")
}

func TestResetPasswordRequiresVerifiedChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeForgot)
	env.ctrl.SetResetEmail("a@example.com")
	require.NoError(t, env.ctrl.SendResetCode(ctx))

	err := env.ctrl.ResetPassword(ctx, "fresh-password")
	assert.ErrorIs(t, err, apperror.ErrPrecondition)
	assert.Equal(t, 0, env.backend.hitCount("/auth/forgot-password/reset"))
}

func TestLogoutClearsSessionAndNotifiesWatchers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	changes := 0
	env.store.Watch(func() { changes++ })

	env.ctrl.Open(ModeSignIn)
	env.ctrl.SetEmail("a@example.com")
	env.ctrl.SetPassword("correct-password")
	require.NoError(t, env.ctrl.SignIn(ctx))
	require.NotNil(t, env.restoredSession(t))

	require.NoError(t, env.ctrl.Logout())
	assert.Nil(t, env.restoredSession(t))
	assert.Equal(t, 2, changes) // one commit, one clear
}

func TestSwitchModeDiscardsChallengeOfModeLeft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("new@example.com")
	require.NoError(t, env.ctrl.SendSignupCode(ctx))
	require.NoError(t, env.ctrl.ConfirmSignupCode(ctx, signupCode))

	env.ctrl.SwitchMode(ModeSignIn)
	env.ctrl.SwitchMode(ModeSignUp)

	st := env.ctrl.State()
	assert.Equal(t, GateIdle, st.SignupChallenge)
	assert.Equal(t, "new@example.com", st.Email, "email carries over between faces")
}

func TestActionsRefusedOutsideTheirMode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Modal closed entirely.
	err := env.ctrl.SignIn(ctx)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)

	// Wrong face showing.
	env.ctrl.Open(ModeSignIn)
	err = env.ctrl.SendSignupCode(ctx)
	assert.ErrorIs(t, err, apperror.ErrPrecondition)
	err = env.ctrl.ResetPassword(ctx, "fresh-password")
	assert.ErrorIs(t, err, apperror.ErrPrecondition)
}

func TestRepeatTriggerWhileBusyIsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("new@example.com")

	reached, release := env.backend.hold("/auth/send-otp")

	done := make(chan error, 1)
	go func() { done <- env.ctrl.SendSignupCode(ctx) }()
	<-reached

	// Second trigger while the first is still in flight: no second request,
	// and the user is told why nothing happened.
	require.NoError(t, env.ctrl.SendSignupCode(ctx))
	assert.Equal(t, 1, env.backend.hitCount("/auth/send-otp"))
	assert.Equal(t, "still working on the previous request", env.lastNote(t))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, GateSent, env.ctrl.State().SignupChallenge)
}

// Snapshot reads must be safe at any moment, including the instant an
// in-flight action resolves and applies its state transition.
func TestStateSnapshotSafeWhileRequestResolves(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("new@example.com")

	reached, release := env.backend.hold("/auth/send-otp")

	done := make(chan error, 1)
	go func() { done <- env.ctrl.SendSignupCode(ctx) }()
	<-reached

	// Poll the snapshot while the response lands, the way a render loop
	// would. The race detector flags any unguarded transition.
	close(release)
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.Equal(t, GateSent, env.ctrl.State().SignupChallenge)
			return
		default:
			_ = env.ctrl.State()
		}
	}
}

func TestEmailEditDuringInFlightSendOrphansChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.SetEmail("first@example.com")

	reached, release := env.backend.hold("/auth/send-otp")

	done := make(chan error, 1)
	go func() { done <- env.ctrl.SendSignupCode(ctx) }()
	<-reached

	// The address changes while the code for the old one is on its way.
	env.ctrl.SetEmail("second@example.com")
	close(release)
	require.NoError(t, <-done)

	// The completed send belongs to the discarded round: the visible
	// challenge never leaves idle.
	assert.Equal(t, GateIdle, env.ctrl.State().SignupChallenge)
}

func TestLateResponseAfterCloseIsDiscarded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)

	reached, release := env.backend.hold("/auth/google")

	done := make(chan error, 1)
	go func() { done <- env.ctrl.GoogleSignIn(ctx, "google-new") }()
	<-reached

	env.ctrl.Close()
	close(release)
	require.NoError(t, <-done)

	// The exchange succeeded server-side, but the flow it belonged to is
	// gone: no nickname setup, no pending identity, no session.
	st := env.ctrl.State()
	assert.False(t, st.NicknameSetup)
	assert.False(t, st.Visible)
	assert.Nil(t, env.restoredSession(t))
}

func TestLateSignInAfterCloseCommitsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ctrl.Open(ModeSignIn)
	env.ctrl.SetEmail("a@example.com")
	env.ctrl.SetPassword("correct-password")

	reached, release := env.backend.hold("/auth/login")

	done := make(chan error, 1)
	go func() { done <- env.ctrl.SignIn(ctx) }()
	<-reached

	env.ctrl.Close()
	close(release)
	require.NoError(t, <-done)

	assert.Nil(t, env.restoredSession(t))
}

func TestOpenFromNavigationConsumedOnce(t *testing.T) {
	env := newTestEnv(t)

	assert.True(t, env.ctrl.OpenFromNavigation())
	assert.False(t, env.ctrl.OpenFromNavigation(), "already open: intent not consumed again")

	st := env.ctrl.State()
	assert.True(t, st.Visible)
	assert.Equal(t, ModeSignIn, st.Mode)
}

func TestNicknameTakenVerdict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.backend.mu.Lock()
	env.backend.taken["nova"] = true
	env.backend.mu.Unlock()

	env.ctrl.Open(ModeSignUp)
	env.ctrl.ProposeNickname("nova")
	require.NoError(t, env.ctrl.CheckNickname(ctx))

	assert.False(t, env.ctrl.State().NicknameAvailable)
	assert.Equal(t, "nickname is already taken", env.lastNote(t))
}
