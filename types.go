package auth

import (
	"context"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the logging contract used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// ResolveLogger picks the logger for name, preferring provider over logger
// and falling back to a no-op logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	return glog.Resolve(name, provider, logger)
}

// Authenticator verifies credentials and decodes the tokens it issued
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error)
	ParseToken(token string) (string, error)
}

// UserStore is the lookup capability the authenticator needs from persistence.
// Implementations signal a missing record with ErrUserNotFound, a not found
// category error, or a nil user.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// UserStoreFunc adapts a function into a UserStore.
type UserStoreFunc func(ctx context.Context, email string) (*User, error)

// FindByEmail satisfies the UserStore interface.
func (f UserStoreFunc) FindByEmail(ctx context.Context, email string) (*User, error) {
	if f == nil {
		return nil, ErrUserNotFound
	}
	return f(ctx, email)
}

// TokenCodec turns a subject identifier into a signed token and back.
type TokenCodec interface {
	Encode(subjectID string) (string, error)
	Decode(token string) (string, error)
}

// PasswordComparer checks a cleartext password against the stored value.
// A mismatch must be reported as ErrUserNotAuthenticated.
type PasswordComparer interface {
	Compare(password, stored string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetPasswordScheme() string
}
