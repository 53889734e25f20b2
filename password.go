package auth

import (
	"crypto/subtle"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrUserNotAuthenticated
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

// BcryptComparer compares against bcrypt hashes. It is the default comparer.
type BcryptComparer struct{}

// Compare satisfies the PasswordComparer interface.
func (BcryptComparer) Compare(password, stored string) error {
	if password == "" {
		return ErrUserNotAuthenticated
	}
	return ComparePasswordAndHash(password, stored)
}

// PlaintextComparer compares against passwords stored in the clear. Only use
// it for legacy records; the comparison runs in constant time.
type PlaintextComparer struct{}

// Compare satisfies the PasswordComparer interface.
func (PlaintextComparer) Compare(password, stored string) error {
	if password == "" || stored == "" {
		return ErrUserNotAuthenticated
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(stored)) != 1 {
		return ErrUserNotAuthenticated
	}
	return nil
}

// PasswordComparerFor resolves a comparer from a configured scheme name.
func PasswordComparerFor(scheme string) (PasswordComparer, error) {
	switch scheme {
	case "", PasswordSchemeBcrypt:
		return BcryptComparer{}, nil
	case PasswordSchemeArgon2:
		return Argon2Comparer{}, nil
	case PasswordSchemePlaintext:
		return PlaintextComparer{}, nil
	default:
		return nil, errors.New("unknown password scheme", errors.CategoryValidation).
			WithMetadata(map[string]any{"scheme": scheme})
	}
}

var (
	_ PasswordComparer = BcryptComparer{}
	_ PasswordComparer = PlaintextComparer{}
)
