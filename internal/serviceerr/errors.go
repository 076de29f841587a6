// Package serviceerr defines the error taxonomy shared by the service and its
// mapping onto HTTP status codes.
package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

// RFC6749 Authorization errors
const (
	CodeInvalidRequest          Code = "invalid_request"
	CodeUnauthorizedClient      Code = "unauthorized_client"
	CodeAccessDenied            Code = "access_denied"
	CodeUnsupportedResponseType Code = "unsupported_response_type"
	CodeInvalidScope            Code = "invalid_scope"
	CodeServerError             Code = "server_error"
	CodeTemporarilyUnavailable  Code = "temporarily_unavailable"
)

// RFC6749 Token errors
const (
	CodeInvalidClient        Code = "invalid_client"
	CodeInvalidGrant         Code = "invalid_grant"
	CodeUnsupportedGrantType Code = "unsupported_grant_type"
)

// Custom codes
const (
	CodeUnknown          Code = "unknown"
	CodeConflict         Code = "conflict"
	CodeNotFound         Code = "not_found"
	CodeUnauthorized     Code = "unauthorized"
	CodeUpstreamRejected Code = "upstream_rejected"
)

// Error is a classified service error. Description is fixed per error kind,
// Detail carries request specific information that is safe to show to a user.
type Error struct {
	Err         Code
	Description string
	Detail      string
}

var (
	ErrInvalidRequest          = &Error{Err: CodeInvalidRequest}
	ErrUnauthorizedClient      = &Error{Err: CodeUnauthorizedClient}
	ErrAccessDenied            = &Error{Err: CodeAccessDenied}
	ErrUnsupportedResponseType = &Error{Err: CodeUnsupportedResponseType}
	ErrInvalidScope            = &Error{Err: CodeInvalidScope}
	ErrServerError             = &Error{Err: CodeServerError}
	ErrTemporarilyUnavailable  = &Error{Err: CodeTemporarilyUnavailable}

	ErrInvalidClient        = &Error{Err: CodeInvalidClient}
	ErrInvalidGrant         = &Error{Err: CodeInvalidGrant}
	ErrUnsupportedGrantType = &Error{Err: CodeUnsupportedGrantType}

	ErrUnknown      = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrConflict     = &Error{Err: CodeConflict, Description: "already exists"}
	ErrNotFound     = &Error{Err: CodeNotFound, Description: "not found"}
	ErrUnauthorized = &Error{Err: CodeUnauthorized, Description: "missing or invalid credentials"}

	ErrEntropyUnavailable        = &Error{Err: CodeServerError, Description: "entropy source unavailable"}
	ErrStoreUnavailable          = &Error{Err: CodeTemporarilyUnavailable, Description: "session store unavailable"}
	ErrInvalidOrExpiredSession   = &Error{Err: CodeInvalidGrant, Description: "invalid or expired OAuth session"}
	ErrUpstreamRejected          = &Error{Err: CodeUpstreamRejected, Description: "upstream rejected the authorization code"}
	ErrUpstreamUnavailable       = &Error{Err: CodeTemporarilyUnavailable, Description: "upstream provider unavailable, try again"}
	ErrUpstreamRequestFailed     = &Error{Err: CodeUpstreamRejected, Description: "X API request failed"}
	ErrAccountNotLinked          = &Error{Err: CodeInvalidRequest, Description: "X access token not found. Please connect your X account first."}
	ErrMissingCallbackParameters = &Error{Err: CodeInvalidRequest, Description: "missing code or state parameter"}
	ErrProviderDenied            = &Error{Err: CodeAccessDenied, Description: "authorization denied by the provider"}
	ErrInvalidAction             = &Error{Err: CodeInvalidRequest, Description: "invalid action"}
	ErrInvalidEndpoint           = &Error{Err: CodeInvalidRequest, Description: "invalid endpoint"}
)

func (e *Error) Error() string {
	msg := string(e.Err)
	if e.Description != "" {
		msg += ": " + e.Description
	}

	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}

	return msg
}

// Is matches errors of the same code. A target without a description matches
// every error of its code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Err == e.Err && (t.Description == "" || t.Description == e.Description)
}

// WithDetail returns a copy of the error carrying the given detail.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail

	return &c
}

// Message is the text shown to end users.
func (e *Error) Message() string {
	msg := e.Description
	if msg == "" {
		msg = string(e.Err)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeUnsupportedResponseType, CodeInvalidScope,
		CodeInvalidClient, CodeInvalidGrant, CodeUnsupportedGrantType:
		return http.StatusBadRequest
	case CodeUnauthorizedClient, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstreamRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// From extracts the classified error from the chain. Unclassified errors
// become ErrUnknown so no internal detail reaches the caller.
func From(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}

	return ErrUnknown
}
