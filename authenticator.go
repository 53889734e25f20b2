package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// Auther verifies credentials against a UserStore and issues tokens through a
// TokenCodec. It holds no per call state and is safe for concurrent use once
// configured.
type Auther struct {
	store          UserStore
	codec          TokenCodec
	comparer       PasswordComparer
	logger         Logger
	loggerProvider LoggerProvider
	activitySink   ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store UserStore, codec TokenCodec) *Auther {
	s := &Auther{
		store:        store,
		codec:        codec,
		comparer:     BcryptComparer{},
		activitySink: noopActivitySink{},
	}
	s.loggerProvider, s.logger = ResolveLogger("auth", nil, nil)
	return s
}

// WithLogger sets the logger used for authentication diagnostics.
func (s *Auther) WithLogger(logger Logger) *Auther {
	s.loggerProvider, s.logger = ResolveLogger("auth", nil, logger)
	return s
}

// WithLoggerProvider resolves the "auth" logger from provider.
func (s *Auther) WithLoggerProvider(provider LoggerProvider) *Auther {
	s.loggerProvider, s.logger = ResolveLogger("auth", provider, s.logger)
	return s
}

// WithPasswordComparer replaces the default bcrypt comparer.
func (s *Auther) WithPasswordComparer(comparer PasswordComparer) *Auther {
	if comparer != nil {
		s.comparer = comparer
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenCodec returns the codec used to issue and parse tokens
func (s *Auther) TokenCodec() TokenCodec {
	return s.codec
}

// Authenticate checks creds and returns a signed access token for the user.
// Failures are ErrUserNotFound or ErrUserNotAuthenticated; anything else is an
// infrastructure error from the store or the codec.
func (s *Auther) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	creds = NewCredentials(creds.Email, creds.Password)
	email := creds.Email

	// a missing password is reported after the lookup so unknown users stay
	// ErrUserNotFound
	if err := creds.Validate(); err != nil && hasFieldError(err, "email") {
		s.logger.Debug("Authenticate called without email", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": ErrUserNotFound.TextCode,
		})
		return nil, ErrUserNotFound
	}

	user, err := s.findUser(ctx, email)
	if err != nil {
		if IsUserNotFound(err) {
			s.logger.Debug("Authenticate unknown user", "identifier", email)
		} else {
			s.logger.Error("Authenticate user lookup error", "error", err)
		}
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": email,
			"error":      textCode(err),
		})
		return nil, err
	}

	if err := s.comparePassword(creds.Password, user.PasswordHash); err != nil {
		if IsUserNotAuthenticated(err) {
			s.logger.Debug("Authenticate password mismatch", "identifier", email)
		} else {
			s.logger.Error("Authenticate password compare error", "error", err)
		}
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, actorFromUser(user), user.ID, map[string]any{
			"identifier": email,
			"error":      textCode(err),
		})
		return nil, err
	}

	token, err := s.codec.Encode(user.ID)
	if err != nil {
		s.logger.Error("Authenticate failed to issue token", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, actorFromUser(user), user.ID, map[string]any{
			"identifier": email,
			"error":      textCode(err),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, actorFromUser(user), user.ID, map[string]any{
		"identifier": email,
	})

	return &AuthResult{AccessToken: token}, nil
}

// ParseToken returns the subject of a token issued by this authenticator
func (s *Auther) ParseToken(token string) (string, error) {
	subject, err := s.codec.Decode(token)
	if err != nil {
		s.logger.Debug("ParseToken rejected token", "error", err)
		if !IsTokenInvalid(err) {
			return "", errors.Wrap(ErrTokenInvalid, errors.CategoryAuth, "token invalid").
				WithTextCode(TextCodeTokenInvalid).
				WithCode(errors.CodeUnauthorized).
				WithMetadata(map[string]any{"cause": err.Error()})
		}
		return "", err
	}
	return subject, nil
}

func (s *Auther) findUser(ctx context.Context, email string) (*User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find user by email")
	}

	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (s *Auther) comparePassword(password, stored string) error {
	if password == "" {
		return ErrUserNotAuthenticated
	}

	err := s.comparer.Compare(password, stored)
	if err == nil || IsUserNotAuthenticated(err) {
		return err
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Category == errors.CategoryInternal {
		return err
	}

	return errors.Wrap(err, errors.CategoryInternal, "failed to compare password")
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}

func hasFieldError(err error, field string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	for _, fe := range richErr.ValidationErrors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   user.ID,
		Type: "user",
	}
}

func isStoreNotFound(err error) bool {
	return IsUserNotFound(err) ||
		errors.IsNotFound(err) ||
		repository.IsRecordNotFound(err)
}

func textCode(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return "UNKNOWN"
}

var _ Authenticator = (*Auther)(nil)
