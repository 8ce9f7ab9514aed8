package server

import "fmt"

// OAuth error codes from RFC 6749 used by this server.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeUnauthorizedClient = "unauthorized_client"
	ErrorCodeServerError        = "server_error"
)

// ProtocolError is an OIDC-shaped validation error. It identifies the
// offending parameter where one exists and is never redirected to the
// client's redirect_uri, since that URI may itself be the problem.
type ProtocolError struct {
	Code        string
	Parameter   string
	Description string
}

func (e *ProtocolError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Parameter, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func invalidRequest(parameter, description string) *ProtocolError {
	return &ProtocolError{Code: ErrorCodeInvalidRequest, Parameter: parameter, Description: description}
}

func unauthorizedClient(description string) *ProtocolError {
	return &ProtocolError{Code: ErrorCodeUnauthorizedClient, Description: description}
}

// SessionError marks a credential submission that arrived without usable
// authorization context. It is a distinct category from request
// validation: the request shape is fine, the session state is not.
type SessionError struct {
	Reason string
}

func (e *SessionError) Error() string {
	return "invalid session: " + e.Reason
}

// AuthError is a failed authentication. The message shown to callers is
// deliberately generic to avoid user enumeration; the underlying cause
// is retained for logs only.
type AuthError struct {
	cause error
}

func (e *AuthError) Error() string {
	return "unauthorized: user not found"
}

func (e *AuthError) Unwrap() error {
	return e.cause
}
