package auth

import (
	"errors"
	"net/http"

	"github.com/vindennt/outfred-gateway/internal/supabase"
)

// User-facing messages.
const (
	MsgInvalidCredentials = "Invalid email or password. Please check your credentials and try again."
	MsgEmailNotConfirmed  = "Please verify your email address before logging in."
	MsgAlreadyRegistered  = "This email is already registered. Please login instead."
	MsgLoginFailed        = "Login failed. Please try again later."
	MsgNoUser             = "No user data received"
)

var (
	ErrNoUser      = &supabase.Error{Kind: supabase.KindNoUser, Message: MsgNoUser}
	ErrInvalidCode = errors.New("invalid or expired verification code")
)

// Error carries a message meant to be shown to the user as-is.
type Error struct {
	Kind    supabase.ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func loginError(err error) error {
	kind := supabase.KindOf(err)
	switch kind {
	case supabase.KindInvalidCredentials:
		return &Error{Kind: kind, Message: MsgInvalidCredentials, Err: err}
	case supabase.KindEmailNotConfirmed:
		return &Error{Kind: kind, Message: MsgEmailNotConfirmed, Err: err}
	}

	msg := err.Error()
	if msg == "" {
		msg = MsgLoginFailed
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// registerError only rewrites the already-registered case; everything else
// reaches the caller unchanged.
func registerError(err error) error {
	if supabase.KindOf(err) == supabase.KindAlreadyRegistered {
		return &Error{Kind: supabase.KindAlreadyRegistered, Message: MsgAlreadyRegistered, Err: err}
	}
	return err
}

// StatusCode picks the HTTP status for an error returned by the container.
func StatusCode(err error) int {
	var ae *Error
	var se *supabase.Error
	switch {
	case errors.As(err, &ae):
		return statusForKind(ae.Kind)
	case errors.As(err, &se):
		return statusForKind(se.Kind)
	case errors.Is(err, ErrInvalidCode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func statusForKind(kind supabase.ErrorKind) int {
	switch kind {
	case supabase.KindInvalidCredentials:
		return http.StatusUnauthorized
	case supabase.KindEmailNotConfirmed:
		return http.StatusForbidden
	case supabase.KindAlreadyRegistered:
		return http.StatusConflict
	case supabase.KindNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
