package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
)

// Credentials is the login payload: an email and a cleartext password
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewCredentials trims the email and returns the credential pair
func NewCredentials(email, password string) Credentials {
	return Credentials{
		Email:    strings.TrimSpace(email),
		Password: password,
	}
}

// Validate checks both fields are present.
func (c Credentials) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, validation.By(notBlank)),
		validation.Field(&c.Password, validation.Required),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid credentials payload")
	}
	return nil
}

// GetIdentifier returns the email used to look the user up
func (c Credentials) GetIdentifier() string {
	return c.Email
}

// GetPassword returns the cleartext password
func (c Credentials) GetPassword() string {
	return c.Password
}

// User is the stored record the authenticator reads. PasswordHash holds
// whatever the configured PasswordComparer expects: a bcrypt hash by default.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// AuthResult is returned on a successful login
type AuthResult struct {
	AccessToken string `json:"accessToken"`
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return validation.ErrRequired
	}
	return nil
}
