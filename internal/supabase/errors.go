package supabase

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrorKind is the closed set of remote-auth failures callers branch on.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotConfigured
	KindInvalidCredentials
	KindEmailNotConfirmed
	KindAlreadyRegistered
	KindNoUser
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindEmailNotConfirmed:
		return "email_not_confirmed"
	case KindAlreadyRegistered:
		return "already_registered"
	case KindNoUser:
		return "no_user"
	default:
		return "unknown"
	}
}

const msgNotConfigured = "Supabase not configured. Please add environment variables."

// Error is returned by every Client method that talks to the auth service.
// Message is the service's own wording, suitable for pass-through.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err, KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

var statusPrefix = regexp.MustCompile(`^response status code \d+:\s*`)

// classify turns a gotrue failure into an *Error. gotrue-go reports non-2xx
// answers as "response status code N: <body>"; the body carries the message
// and, on newer servers, an error_code.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	raw := err.Error()
	body := statusPrefix.ReplaceAllString(raw, "")

	var payload struct {
		Code             string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	msg := body
	if jerr := json.Unmarshal([]byte(body), &payload); jerr == nil {
		for _, m := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
			if m != "" {
				msg = m
				break
			}
		}
	}

	lower := strings.ToLower(raw)
	kind := KindUnknown
	switch {
	case strings.Contains(lower, "invalid login credentials"), payload.Code == "invalid_credentials":
		kind = KindInvalidCredentials
	case strings.Contains(lower, "email not confirmed"), payload.Code == "email_not_confirmed":
		kind = KindEmailNotConfirmed
	case strings.Contains(lower, "already registered"), payload.Code == "user_already_exists":
		kind = KindAlreadyRegistered
	}

	return &Error{Kind: kind, Message: msg, Err: err}
}
