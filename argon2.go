package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
)

// Argon2Params are the Argon2id cost factors encoded into every hash.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Bounds accepted for Argon2id parameters, both when hashing and when reading
// a stored hash.
const (
	maxArgon2Memory     = 1 << 20 // KiB
	maxArgon2Iterations = 64
	minArgon2SaltLength = 8
	minArgon2KeyLength  = 4
	maxArgon2Length     = 1024
)

// DefaultArgon2Params is used when no params are given
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPasswordArgon2 returns a PHC encoded Argon2id hash
func HashPasswordArgon2(password string, params Argon2Params) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if err := params.Validate(); err != nil {
		return "", err
	}

	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate salt")
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Validate checks the cost factors are within the range argon2.IDKey accepts
// and small enough to compute.
func (p Argon2Params) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Iterations, validation.Required, validation.Max(uint32(maxArgon2Iterations))),
		validation.Field(&p.Parallelism, validation.Required),
		validation.Field(&p.Memory, validation.Required,
			validation.Min(8*uint32(p.Parallelism)),
			validation.Max(uint32(maxArgon2Memory)),
		),
		validation.Field(&p.SaltLength, validation.Required,
			validation.Min(uint32(minArgon2SaltLength)),
			validation.Max(uint32(maxArgon2Length)),
		),
		validation.Field(&p.KeyLength, validation.Required,
			validation.Min(uint32(minArgon2KeyLength)),
			validation.Max(uint32(maxArgon2Length)),
		),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid argon2id parameters")
	}
	return nil
}

// Argon2Comparer compares against PHC encoded Argon2id hashes.
type Argon2Comparer struct{}

// Compare satisfies the PasswordComparer interface.
func (Argon2Comparer) Compare(password, stored string) error {
	if password == "" {
		return ErrUserNotAuthenticated
	}

	params, salt, key, err := decodeArgon2Hash(stored)
	if err != nil {
		return err
	}

	other := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	if subtle.ConstantTimeCompare(key, other) != 1 {
		return ErrUserNotAuthenticated
	}
	return nil
}

func decodeArgon2Hash(encoded string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	invalid := func(cause error) error {
		err := errors.New("invalid argon2id hash", errors.CategoryInternal)
		if cause != nil {
			err = err.WithMetadata(map[string]any{"cause": cause.Error()})
		}
		return err
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, invalid(nil)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, invalid(err)
	}
	if version != argon2.Version {
		return params, nil, nil, invalid(fmt.Errorf("unsupported version %d", version))
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, invalid(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, invalid(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, invalid(err)
	}

	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))

	if err := params.Validate(); err != nil {
		return params, nil, nil, invalid(err)
	}

	return params, salt, key, nil
}

var _ PasswordComparer = Argon2Comparer{}
