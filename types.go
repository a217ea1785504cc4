package goSession

import (
	"time"

	"github.com/MrEthical07/goSession/session"
)

// User is the identity snapshot held with the session.
type User = session.User

/*
====================================
SESSION STATE
====================================
*/

// State defines a public type used by goSession APIs.
type State int

const (
	// StateSignedOut means no session was established or adopted by this manager.
	StateSignedOut State = iota
	// StateActive means the session has more than WarningWindow left.
	StateActive
	// StateWarning means expiry is within WarningWindow.
	StateWarning
	// StateExpired means the session timed out. It is terminal for that session.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Authenticated reports whether the state carries a usable token.
func (s State) Authenticated() bool {
	return s == StateActive || s == StateWarning
}

// Status is the result of one monitor evaluation.
type Status struct {
	State State
	// Remaining is ExpiresAt - now, clamped at zero.
	Remaining time.Duration
	// RemainingSeconds is Remaining in whole seconds, rounded per Monitor.Rounding.
	// It is only meaningful in StateWarning.
	RemainingSeconds int64
	ExpiresAt        time.Time
	User             *User
}

/*
====================================
LOGOUT
====================================
*/

// LogoutReason defines a public type used by goSession APIs.
type LogoutReason int

const (
	// LogoutUserInitiated is an explicit logout.
	LogoutUserInitiated LogoutReason = iota + 1
	// LogoutTimeout is an inactivity expiry detected by the monitor.
	LogoutTimeout
	// LogoutUnauthorized is an authentication-denied answer from the backend.
	LogoutUnauthorized
	// LogoutExternal is a session cleared by another client sharing the profile.
	LogoutExternal
)

func (r LogoutReason) String() string {
	switch r {
	case LogoutUserInitiated:
		return "user_initiated"
	case LogoutTimeout:
		return "timeout"
	case LogoutUnauthorized:
		return "unauthorized"
	case LogoutExternal:
		return "external"
	default:
		return "unknown"
	}
}

// LogoutEvent is passed to logout hooks.
type LogoutEvent struct {
	Reason    LogoutReason
	SessionID string
	User      *User
	At        time.Time
}

// LogoutHook is invoked once per ended session, after the record was cleared.
type LogoutHook func(LogoutEvent)

// StateHook is invoked on every state transition.
type StateHook func(from, to State, status Status)

/*
====================================
ACTIVITY
====================================
*/

// SignalKind enumerates user-interaction signals.
type SignalKind int

const (
	// SignalPointerPress is a mouse or pen press.
	SignalPointerPress SignalKind = iota + 1
	// SignalPointerMove is pointer movement.
	SignalPointerMove
	// SignalKeyPress is a key press.
	SignalKeyPress
	// SignalScroll is a scroll.
	SignalScroll
	// SignalTouch is a touch start.
	SignalTouch
)

// AllSignals lists every SignalKind.
var AllSignals = []SignalKind{SignalPointerPress, SignalPointerMove, SignalKeyPress, SignalScroll, SignalTouch}

func (k SignalKind) valid() bool {
	return k >= SignalPointerPress && k <= SignalTouch
}

func (k SignalKind) String() string {
	switch k {
	case SignalPointerPress:
		return "pointer_press"
	case SignalPointerMove:
		return "pointer_move"
	case SignalKeyPress:
		return "key_press"
	case SignalScroll:
		return "scroll"
	case SignalTouch:
		return "touch"
	default:
		return "unknown"
	}
}

/*
====================================
CREDENTIAL OPERATIONS
====================================
*/

// LoginOutcome defines a public type used by goSession APIs.
type LoginOutcome int

const (
	// LoginAuthenticated means a session was established.
	LoginAuthenticated LoginOutcome = iota + 1
	// LoginTwoFactorRequired means the caller must repeat the login with an OTP code.
	LoginTwoFactorRequired
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginAuthenticated:
		return "authenticated"
	case LoginTwoFactorRequired:
		return "two_factor_required"
	default:
		return "unknown"
	}
}

// LoginResult is returned by Login when err is nil.
type LoginResult struct {
	Outcome LoginOutcome
	// User is nil when the profile fetch failed for a non-fatal reason.
	User *User
	// SessionID identifies the established record.
	SessionID string
	ExpiresAt time.Time
}

// TwoFactorChallenge is the pending second-factor prompt. It is never persisted.
type TwoFactorChallenge struct {
	Identifier string
	IssuedAt   time.Time
}

// RegisterInput carries the fields of a registration form.
type RegisterInput struct {
	Email    string
	Username string
	FullName string
	Password string
}

// AutoLoginOutcome reports the login step of RegisterAndLogin.
type AutoLoginOutcome int

const (
	// AutoLoginSkipped means no login was attempted (Register only).
	AutoLoginSkipped AutoLoginOutcome = iota
	// AutoLoginSucceeded means a session was established.
	AutoLoginSucceeded
	// AutoLoginTwoFactorRequired means the new account needs a second factor to sign in.
	AutoLoginTwoFactorRequired
	// AutoLoginFailed means the account was created but signing in failed.
	AutoLoginFailed
)

// RegisterResult is returned by Register and RegisterAndLogin when err is nil.
type RegisterResult struct {
	Created   bool
	AutoLogin AutoLoginOutcome
	// Login is set when AutoLogin is AutoLoginSucceeded.
	Login *LoginResult
	// LoginErr is set when AutoLogin is AutoLoginFailed.
	LoginErr error
}

// ResetPasswordInput carries the fields of a password-reset form.
type ResetPasswordInput struct {
	Email           string
	OTP             string
	NewPassword     string
	ConfirmPassword string
}
