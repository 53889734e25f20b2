package auth

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeUserNotFound          = "USER_NOT_FOUND"
	TextCodeUserNotAuthenticated  = "USER_NOT_AUTHENTICATED"
	TextCodeTokenInvalid          = "TOKEN_INVALID"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenSignatureInvalid = "TOKEN_SIGNATURE_INVALID"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD_NOT_ALLOWED"
)

// ErrUserNotFound is returned when no user record matches the email
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUserNotAuthenticated is returned when the user exists but the password does not match
var ErrUserNotAuthenticated = errors.New("user not authenticated", errors.CategoryAuth).
	WithTextCode(TextCodeUserNotAuthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalid is returned when a token fails signature, structure or expiry checks
var ErrTokenInvalid = errors.New("token invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// IsUserNotFound reports whether err is, or wraps, ErrUserNotFound
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsUserNotAuthenticated reports whether err is, or wraps, ErrUserNotAuthenticated
func IsUserNotAuthenticated(err error) bool {
	return errors.Is(err, ErrUserNotAuthenticated)
}

// IsTokenInvalid reports whether err is, or wraps, ErrTokenInvalid
func IsTokenInvalid(err error) bool {
	return errors.Is(err, ErrTokenInvalid)
}

// HTTPStatus maps an error to the status code a transport layer should use.
// All three authentication errors map to 401 so callers cannot probe which
// emails exist.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}

	return http.StatusInternalServerError
}

// tokenInvalid keeps ErrTokenInvalid in the chain while recording why decoding failed.
func tokenInvalid(textCode, reason string, cause error) error {
	err := errors.Wrap(ErrTokenInvalid, errors.CategoryAuth, reason).
		WithTextCode(textCode).
		WithCode(errors.CodeUnauthorized)

	if cause != nil {
		err = err.WithMetadata(map[string]any{"cause": cause.Error()})
	}

	return err
}
