package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth 2.0 error codes (RFC 6749 Sections 4.1.2.1 and 5.2).
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeServerError             = "server_error"
)

// Error is an OAuth 2.0 protocol error. The JSON form matches the error
// response body of RFC 6749 Section 5.2; Status carries the HTTP status a
// transport layer should answer with and is not serialized.
//
// Engine operations return *Error for every protocol-level failure, so
// callers recover the code and status with errors.As.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates an OAuth error with the given code, description and HTTP
// status.
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Error constructors for the standard OAuth error codes.
var (
	// ErrInvalidRequest indicates a malformed or incomplete request.
	ErrInvalidRequest = func(description string) *Error {
		return NewError(ErrorCodeInvalidRequest, description, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates failed client authentication.
	ErrInvalidClient = func(description string) *Error {
		return NewError(ErrorCodeInvalidClient, description, http.StatusUnauthorized)
	}

	// ErrInvalidGrant indicates an invalid, expired, revoked or mismatched
	// grant, code or refresh token.
	ErrInvalidGrant = func(description string) *Error {
		return NewError(ErrorCodeInvalidGrant, description, http.StatusBadRequest)
	}

	// ErrUnauthorizedClient indicates the authenticated client may not use
	// the requested grant type.
	ErrUnauthorizedClient = func(description string) *Error {
		return NewError(ErrorCodeUnauthorizedClient, description, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates a grant type the engine does not
	// serve.
	ErrUnsupportedGrantType = func(description string) *Error {
		return NewError(ErrorCodeUnsupportedGrantType, description, http.StatusBadRequest)
	}

	// ErrUnsupportedResponseType indicates a response type the authorization
	// endpoint does not serve.
	ErrUnsupportedResponseType = func(description string) *Error {
		return NewError(ErrorCodeUnsupportedResponseType, description, http.StatusBadRequest)
	}

	// ErrInvalidScope indicates a requested scope exceeding what the client
	// or the original grant allows.
	ErrInvalidScope = func(description string) *Error {
		return NewError(ErrorCodeInvalidScope, description, http.StatusBadRequest)
	}

	// ErrAccessDenied indicates the resource owner or the engine refused the
	// request.
	ErrAccessDenied = func(description string) *Error {
		return NewError(ErrorCodeAccessDenied, description, http.StatusForbidden)
	}

	// ErrServerError indicates an internal fault that is not the caller's
	// doing.
	ErrServerError = func(description string) *Error {
		return NewError(ErrorCodeServerError, description, http.StatusInternalServerError)
	}

	// ErrStorageError indicates a storage backend fault. The 503 status
	// distinguishes retryable infrastructure trouble from protocol errors.
	ErrStorageError = func(description string) *Error {
		return NewError(ErrorCodeServerError, description, http.StatusServiceUnavailable)
	}
)

// errorCode extracts the OAuth error code from an engine error for use as a
// bounded metric label. Anything that is not an *Error counts as a server
// fault.
func errorCode(err error) string {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr.Code
	}
	return ErrorCodeServerError
}
