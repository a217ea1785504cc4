package goSession

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches errors raised by local input checks before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrCredential matches errors where the authentication service rejected the credentials or code.
	ErrCredential = errors.New("credentials rejected")
	// ErrTwoFactorRequired matches the second-factor sentinel answer of the login endpoint.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrNetwork matches transport failures and missing responses.
	ErrNetwork = errors.New("network failure")
	// ErrAuthorizationExpired matches authentication-denied answers for requests made with a stored token.
	ErrAuthorizationExpired = errors.New("authorization expired")
	// ErrService matches unexpected server failures (5xx, undecodable bodies).
	ErrService = errors.New("service failure")

	// ErrPasswordMismatch is wrapped by the validation error returned when the new password and its confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrLoginSuperseded is returned when a newer login attempt was issued before this one completed.
	ErrLoginSuperseded = errors.New("login attempt superseded")
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active session")
	// ErrManagerClosed is returned after Close.
	ErrManagerClosed = errors.New("manager closed")
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
)

// ErrorKind classifies every failure surfaced by the credential operations.
type ErrorKind int

const (
	// KindValidation is a local input error.
	KindValidation ErrorKind = iota + 1
	// KindCredential is a rejected credential or second factor.
	KindCredential
	// KindTwoFactorRequired is the login second-factor sentinel.
	KindTwoFactorRequired
	// KindNetwork is a transport failure.
	KindNetwork
	// KindAuthorizationExpired is an authentication-denied answer to a token-bearing request.
	KindAuthorizationExpired
	// KindService is an unexpected server failure.
	KindService
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:           ErrValidation,
	KindCredential:           ErrCredential,
	KindTwoFactorRequired:    ErrTwoFactorRequired,
	KindNetwork:              ErrNetwork,
	KindAuthorizationExpired: ErrAuthorizationExpired,
	KindService:              ErrService,
}

// String returns the lower-case kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCredential:
		return "credential"
	case KindTwoFactorRequired:
		return "two_factor_required"
	case KindNetwork:
		return "network"
	case KindAuthorizationExpired:
		return "authorization_expired"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// Error is the normalised failure of a gateway or manager operation.
//
// Message is display-ready. Status is the HTTP status when one was received, otherwise 0.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel (ErrValidation, ErrCredential, ...).
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func newError(kind ErrorKind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Err: cause}
}

// KindOf returns the kind of err, or 0 when err is not an [*Error].
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message returns a display-ready message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
