package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bell-ha/artist-promotion-platform/internal/apperror"
	"github.com/bell-ha/artist-promotion-platform/internal/client"
	"github.com/bell-ha/artist-promotion-platform/internal/otp"
	"github.com/bell-ha/artist-promotion-platform/internal/session"
)

// Mode selects which face of the auth modal is showing.
type Mode string

const (
	ModeSignIn Mode = "signin"
	ModeSignUp Mode = "signup"
	ModeForgot Mode = "forgot"
)

// Notifier receives user-facing messages: action failures and the handful of
// success confirmations the flow announces. The render layer decides how to
// show them. Callbacks may run with the controller's lock held and must not
// call back into it.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

type action string

const (
	actionSignIn          action = "sign-in"
	actionSignUp          action = "sign-up"
	actionGoogle          action = "google"
	actionSignupChallenge action = "signup-challenge"
	actionResetChallenge  action = "reset-challenge"
	actionNickname        action = "nickname"
	actionReset           action = "reset-password"
)

// State is a point-in-time snapshot for rendering. Gating decisions belong to
// the controller; the snapshot only tells the view what to enable.
type State struct {
	Visible       bool
	Mode          Mode
	NicknameSetup bool

	Email      string
	ResetEmail string

	SignupChallenge GateState
	ResetChallenge  GateState

	NicknameValue     string
	NicknameAvailable bool

	Busy bool
}

// Controller is the auth modal's state machine. It owns every piece of
// transient flow state — credentials being typed, verification challenges,
// nickname candidates, a Google identity awaiting its nickname — and it is
// the only component that commits or clears the session store.
//
// Network calls run outside the lock; every other touch of controller,
// gate, or nickname state happens under it, so State() may be polled from
// any goroutine. Each action captures the generation counter (and the gate
// or candidate it is acting for) before its call and re-checks both after
// re-acquiring the lock: closing the modal or switching modes bumps the
// counter, and editing a field mid-flight swaps the object, so a late
// response for a discarded flow mutates nothing the view can see.
//
// All errors from triggered actions are surfaced through the Notifier; they
// are also returned for callers that want to inspect them, but nothing above
// the controller is expected to handle them.
type Controller struct {
	api      *client.Client
	sessions *session.Store
	notify   Notifier
	logger   *slog.Logger

	mu sync.Mutex

	visible       bool
	mode          Mode
	nicknameSetup bool

	email      string
	password   string
	resetEmail string

	signupGate *Gate
	resetGate  *Gate
	nickname   *Nickname

	// Google identity awaiting nickname assignment. The token is held here,
	// never in the session store, until the nickname commit succeeds.
	pendingToken string
	pendingEmail string

	busy map[action]bool
	gen  uint64
}

func NewController(api *client.Client, sessions *session.Store, notify Notifier, logger *slog.Logger) *Controller {
	return &Controller{
		api:        api,
		sessions:   sessions,
		notify:     notify,
		logger:     logger,
		mode:       ModeSignIn,
		signupGate: NewGate(),
		resetGate:  NewGate(),
		nickname:   NewNickname(),
		busy:       make(map[action]bool),
	}
}

// State returns a snapshot of the flow for rendering.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Visible:           c.visible,
		Mode:              c.mode,
		NicknameSetup:     c.nicknameSetup,
		Email:             c.email,
		ResetEmail:        c.resetEmail,
		SignupChallenge:   c.signupGate.State(),
		ResetChallenge:    c.resetGate.State(),
		NicknameValue:     c.nickname.Value(),
		NicknameAvailable: c.nickname.Available(),
		Busy:              len(c.busy) > 0,
	}
}

// Open shows the modal in the given mode.
func (c *Controller) Open(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.visible = true
	c.mode = mode
}

// OpenFromNavigation opens the sign-in face in response to a navigation
// intent (a /login route hit). It reports whether the intent was consumed;
// the router replaces the navigation entry on true so that going back does
// not re-trigger the modal.
func (c *Controller) OpenFromNavigation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visible {
		return false
	}
	c.visible = true
	c.mode = ModeSignIn
	return true
}

// Close dismisses the modal and discards all transient flow state, including
// any Google identity still awaiting its nickname. In-flight requests keep
// running but their responses are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardLocked()
}

func (c *Controller) discardLocked() {
	c.visible = false
	c.nicknameSetup = false
	c.email = ""
	c.password = ""
	c.resetEmail = ""
	c.pendingToken = ""
	c.pendingEmail = ""
	c.signupGate = NewGate()
	c.resetGate = NewGate()
	c.nickname = NewNickname()
	c.gen++
}

// SwitchMode changes the visible face. Transient state for the face being
// left — the typed password, its verification challenge, the nickname
// candidate — is discarded; the email field carries over between sign-in and
// sign-up as a convenience.
func (c *Controller) SwitchMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.visible || mode == c.mode {
		return
	}

	switch c.mode {
	case ModeSignUp:
		c.signupGate = NewGate()
		c.nickname = NewNickname()
	case ModeForgot:
		c.resetGate = NewGate()
		c.resetEmail = ""
	}
	c.password = ""
	c.mode = mode
	c.gen++
}

// SetEmail updates the sign-in/sign-up email field. Editing the address
// invalidates any sign-up verification round issued for the previous one.
func (c *Controller) SetEmail(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if email == c.email {
		return
	}
	c.email = email

	if c.busy[actionSignupChallenge] {
		// A round is in flight for the old address; orphan it so the
		// completion finds a different gate and drops its result.
		c.signupGate = NewGate()
		return
	}
	c.signupGate.EmailChanged(email)
}

func (c *Controller) SetPassword(password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = password
}

// SetResetEmail updates the forgot-password email field, invalidating any
// reset challenge issued for the previous address.
func (c *Controller) SetResetEmail(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if email == c.resetEmail {
		return
	}
	c.resetEmail = email

	if c.busy[actionResetChallenge] {
		c.resetGate = NewGate()
		return
	}
	c.resetGate.EmailChanged(email)
}

// ProposeNickname updates the nickname candidate, clearing any availability
// verdict obtained for a previous value.
func (c *Controller) ProposeNickname(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nickname.Propose(value)
}

// SignIn submits the typed credentials. On success the session is committed
// and the modal closes.
func (c *Controller) SignIn(ctx context.Context) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeSignIn {
		c.mu.Unlock()
		return c.report(apperror.Precondition("sign-in is not open"))
	}
	if c.busy[actionSignIn] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	c.busy[actionSignIn] = true
	gen := c.gen
	email, password := c.email, c.password
	c.mu.Unlock()

	res, err := c.api.Login(ctx, email, password)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionSignIn)
	if c.gen != gen {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	if err := c.sessions.Commit(res.Token, res.Nickname); err != nil {
		return c.report(err)
	}
	c.discardLocked()
	return nil
}

// SendSignupCode starts an email verification round for the sign-up face.
func (c *Controller) SendSignupCode(ctx context.Context) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeSignUp {
		c.mu.Unlock()
		return c.report(apperror.Precondition("sign-up is not open"))
	}
	if c.busy[actionSignupChallenge] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if c.email == "" {
		c.mu.Unlock()
		return c.report(apperror.ValidationFailed("email", "enter the email address first"))
	}
	c.busy[actionSignupChallenge] = true
	gen, gate, email := c.gen, c.signupGate, c.email
	c.mu.Unlock()

	err := c.api.SendOTP(ctx, otp.PurposeSignup, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionSignupChallenge)
	if c.gen != gen || c.signupGate != gate {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	gate.MarkSent(email)
	c.notify.Notify("verification code sent — check your email")
	return nil
}

// ConfirmSignupCode submits a sign-up verification code. A mismatch leaves
// the challenge open for another attempt.
func (c *Controller) ConfirmSignupCode(ctx context.Context, code string) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeSignUp {
		c.mu.Unlock()
		return c.report(apperror.Precondition("sign-up is not open"))
	}
	if c.busy[actionSignupChallenge] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if c.signupGate.State() != GateSent {
		c.mu.Unlock()
		return c.report(apperror.Precondition("no verification code has been sent"))
	}
	if code == "" {
		c.mu.Unlock()
		return c.report(apperror.ValidationFailed("otp", "enter the verification code first"))
	}
	c.busy[actionSignupChallenge] = true
	gen, gate, email := c.gen, c.signupGate, c.signupGate.Email()
	c.mu.Unlock()

	ok, err := c.api.VerifyOTP(ctx, otp.PurposeSignup, email, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionSignupChallenge)
	if c.gen != gen || c.signupGate != gate {
		return nil
	}
	if err != nil {
		return c.report(err)
	}
	if !ok {
		return c.report(apperror.VerificationFailed(""))
	}

	gate.MarkConfirmed(code)
	c.notify.Notify("email verified")
	return nil
}

// CheckNickname asks the server whether the current candidate is free.
func (c *Controller) CheckNickname(ctx context.Context) error {
	c.mu.Lock()
	if !c.visible && !c.nicknameSetup {
		c.mu.Unlock()
		return c.report(apperror.Precondition("no nickname entry is open"))
	}
	if c.busy[actionNickname] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if c.nickname.Value() == "" {
		c.mu.Unlock()
		return c.report(apperror.ValidationFailed("nickname", "enter a nickname first"))
	}
	c.busy[actionNickname] = true
	gen, nick, value := c.gen, c.nickname, c.nickname.Value()
	c.mu.Unlock()

	available, err := c.api.CheckNickname(ctx, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionNickname)
	if c.gen != gen || c.nickname != nick {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	nick.Resolve(value, available)
	if available {
		c.notify.Notify("nickname is available")
	} else {
		c.notify.Notify("nickname is already taken")
	}
	return nil
}

// SignUp registers the account. It requires a completed email verification
// and a positive availability verdict for the current nickname candidate; on
// success the modal switches to sign-in with the email prefilled, and the
// user signs in with the new credentials.
func (c *Controller) SignUp(ctx context.Context) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeSignUp {
		c.mu.Unlock()
		return c.report(apperror.Precondition("sign-up is not open"))
	}
	if c.busy[actionSignupChallenge] || c.busy[actionNickname] || c.busy[actionSignUp] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if !c.signupGate.Verified() {
		c.mu.Unlock()
		return c.report(apperror.Precondition("verify your email before signing up"))
	}
	if !c.nickname.Available() {
		c.mu.Unlock()
		return c.report(apperror.Precondition("check nickname availability before signing up"))
	}
	c.busy[actionSignUp] = true
	gen := c.gen
	nickname := c.nickname.Value()
	email, password := c.email, c.password
	c.mu.Unlock()

	err := c.api.SignUp(ctx, nickname, email, password)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionSignUp)
	if c.gen != gen {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	// No session yet: the user signs in with the credentials they just made.
	c.signupGate = NewGate()
	c.nickname = NewNickname()
	c.password = ""
	c.mode = ModeSignIn
	c.gen++
	c.notify.Notify("account created — sign in to continue")
	return nil
}

// GoogleSignIn exchanges a Google credential. An identity that already has a
// nickname is signed in directly; a first-time identity is routed to
// nickname setup with its token parked until the nickname commit succeeds.
func (c *Controller) GoogleSignIn(ctx context.Context, credential string) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeSignIn {
		c.mu.Unlock()
		return c.report(apperror.Precondition("sign-in is not open"))
	}
	if c.busy[actionGoogle] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	c.busy[actionGoogle] = true
	gen := c.gen
	c.mu.Unlock()

	res, err := c.api.ExchangeGoogle(ctx, credential)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionGoogle)
	if c.gen != gen {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	if !res.NewIdentity {
		if err := c.sessions.Commit(res.Token, res.Nickname); err != nil {
			return c.report(err)
		}
		c.discardLocked()
		return nil
	}

	// New identity: hold the token and demand a nickname before any session
	// exists. The placeholder name the server minted never reaches the store.
	c.pendingToken = res.Token
	c.pendingEmail = res.Email
	c.nicknameSetup = true
	c.visible = false
	c.nickname = NewNickname()
	c.gen++
	return nil
}

// CommitNickname finishes a first Google sign-in: it assigns the checked
// candidate to the pending identity and only then commits the session.
func (c *Controller) CommitNickname(ctx context.Context) error {
	c.mu.Lock()
	if !c.nicknameSetup || c.pendingToken == "" {
		c.mu.Unlock()
		return c.report(apperror.Precondition("no sign-in is awaiting a nickname"))
	}
	if c.busy[actionNickname] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if !c.nickname.Available() {
		c.mu.Unlock()
		return c.report(apperror.Precondition("check nickname availability first"))
	}
	c.busy[actionNickname] = true
	gen := c.gen
	name := c.nickname.Value()
	token, email := c.pendingToken, c.pendingEmail
	c.mu.Unlock()

	err := c.api.CommitNickname(ctx, email, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionNickname)
	if c.gen != gen {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	if err := c.sessions.Commit(token, name); err != nil {
		return c.report(err)
	}
	c.discardLocked()
	c.notify.Notify("welcome, " + name)
	return nil
}

// SendResetCode starts a password-reset verification round.
func (c *Controller) SendResetCode(ctx context.Context) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeForgot {
		c.mu.Unlock()
		return c.report(apperror.Precondition("password reset is not open"))
	}
	if c.busy[actionResetChallenge] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if c.resetEmail == "" {
		c.mu.Unlock()
		return c.report(apperror.ValidationFailed("email", "enter the email address first"))
	}
	c.busy[actionResetChallenge] = true
	gen, gate, email := c.gen, c.resetGate, c.resetEmail
	c.mu.Unlock()

	err := c.api.SendOTP(ctx, otp.PurposeReset, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionResetChallenge)
	if c.gen != gen || c.resetGate != gate {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	gate.MarkSent(email)
	c.notify.Notify("verification code sent — check your email")
	return nil
}

// ConfirmResetCode submits a password-reset verification code.
func (c *Controller) ConfirmResetCode(ctx context.Context, code string) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeForgot {
		c.mu.Unlock()
		return c.report(apperror.Precondition("password reset is not open"))
	}
	if c.busy[actionResetChallenge] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if c.resetGate.State() != GateSent {
		c.mu.Unlock()
		return c.report(apperror.Precondition("no verification code has been sent"))
	}
	if code == "" {
		c.mu.Unlock()
		return c.report(apperror.ValidationFailed("otp", "enter the verification code first"))
	}
	c.busy[actionResetChallenge] = true
	gen, gate, email := c.gen, c.resetGate, c.resetGate.Email()
	c.mu.Unlock()

	ok, err := c.api.VerifyOTP(ctx, otp.PurposeReset, email, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionResetChallenge)
	if c.gen != gen || c.resetGate != gate {
		return nil
	}
	if err != nil {
		return c.report(err)
	}
	if !ok {
		return c.report(apperror.VerificationFailed(""))
	}

	gate.MarkConfirmed(code)
	c.notify.Notify("email verified — choose a new password")
	return nil
}

// ResetPassword sets a new password after a completed reset challenge and
// returns the user to the sign-in face with the email prefilled.
func (c *Controller) ResetPassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	if !c.visible || c.mode != ModeForgot {
		c.mu.Unlock()
		return c.report(apperror.Precondition("password reset is not open"))
	}
	if c.busy[actionResetChallenge] || c.busy[actionReset] {
		c.mu.Unlock()
		return c.refuseBusy()
	}
	if !c.resetGate.Verified() {
		c.mu.Unlock()
		return c.report(apperror.Precondition("verify your email before choosing a new password"))
	}
	c.busy[actionReset] = true
	gen := c.gen
	email, code := c.resetGate.Email(), c.resetGate.Code()
	c.mu.Unlock()

	err := c.api.ResetPassword(ctx, email, code, newPassword)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, actionReset)
	if c.gen != gen {
		return nil
	}
	if err != nil {
		return c.report(err)
	}

	c.resetGate = NewGate()
	c.resetEmail = ""
	c.email = email
	c.password = ""
	c.mode = ModeSignIn
	c.gen++
	c.notify.Notify("password updated — sign in with your new password")
	return nil
}

// Logout clears the persisted session. Watchers on the store pick up the
// change; no reload is involved.
func (c *Controller) Logout() error {
	if err := c.sessions.Clear(); err != nil {
		return c.report(err)
	}
	return nil
}

// refuseBusy drops a duplicate trigger: the first request is still in
// flight, so the repeat makes no second call and the user is told why
// nothing happened.
func (c *Controller) refuseBusy() error {
	c.notify.Notify("still working on the previous request")
	return nil
}

// report surfaces an action failure to the user and returns it. Precondition
// violations additionally get logged: they mean the render layer enabled an
// action whose gate was not satisfied.
func (c *Controller) report(err error) error {
	if errors.Is(err, apperror.ErrPrecondition) {
		c.logger.Error("auth flow precondition violated", slog.String("error", err.Error()))
	}
	c.notify.Notify(err.Error())
	return err
}
