package auth

import "net/http"

type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e == nil {
		return "auth error"
	}
	return e.Message
}

var (
	errAuthRequired     = &AuthError{Status: http.StatusUnauthorized, Message: "authentication required"}
	errPermissionDenied = &AuthError{Status: http.StatusForbidden, Message: "permission denied"}
	errMissingCreds     = &AuthError{Status: http.StatusBadRequest, Message: "missing credentials"}
	errInvalidCreds     = &AuthError{Status: http.StatusUnauthorized, Message: "invalid username/password"}
	errTooManyAttempts  = &AuthError{Status: http.StatusTooManyRequests, Message: "too many login attempts"}
)
