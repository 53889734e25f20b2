package auth_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-authn"
	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(store auth.UserStore) *auth.Auther {
	return auth.NewAuthenticator(store, newTestTokenService()).
		WithPasswordComparer(auth.PlaintextComparer{})
}

func TestAuthenticateSuccess(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	store.On("FindByEmail", ctx, "a@b.com").
		Return(&auth.User{ID: "user-1", Email: "a@b.com", PasswordHash: "pw"}, nil).Once()

	authenticator := newTestAuthenticator(store)

	res, err := authenticator.Authenticate(ctx, auth.Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, auth.LooksLikeToken(res.AccessToken))

	subject, err := authenticator.ParseToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)

	store.AssertExpectations(t)
}

func TestAuthenticateWithBcryptHash(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)

	store := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) {
		return &auth.User{ID: "user-1", Email: "a@b.com", PasswordHash: hash}, nil
	})
	authenticator := auth.NewAuthenticator(store, newTestTokenService())

	_, err = authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	require.NoError(t, err)

	_, err = authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "PW"))
	assert.True(t, auth.IsUserNotAuthenticated(err))
}

func TestAuthenticateFailures(t *testing.T) {
	user := &auth.User{ID: "user-1", Email: "a@b.com", PasswordHash: "pw"}

	tests := []struct {
		name      string
		creds     auth.Credentials
		storeUser *auth.User
		storeErr  error
		skipStore bool
		check     func(t *testing.T, err error)
	}{
		{
			name:      "blank email",
			creds:     auth.Credentials{Email: "   ", Password: "pw"},
			skipStore: true,
			check:     func(t *testing.T, err error) { assert.True(t, auth.IsUserNotFound(err)) },
		},
		{
			name:      "empty email and password",
			creds:     auth.Credentials{},
			skipStore: true,
			check: func(t *testing.T, err error) {
				assert.True(t, auth.IsUserNotFound(err))
				assert.False(t, errors.IsValidation(err))
			},
		},
		{
			name:  "nil user",
			creds: auth.Credentials{Email: "a@b.com", Password: "pw"},
			check: func(t *testing.T, err error) { assert.True(t, auth.IsUserNotFound(err)) },
		},
		{
			name:     "store not found sentinel",
			creds:    auth.Credentials{Email: "a@b.com", Password: "pw"},
			storeErr: fmt.Errorf("lookup: %w", auth.ErrUserNotFound),
			check:    func(t *testing.T, err error) { assert.True(t, auth.IsUserNotFound(err)) },
		},
		{
			name:     "store not found category",
			creds:    auth.Credentials{Email: "a@b.com", Password: "pw"},
			storeErr: errors.New("no such row", errors.CategoryNotFound),
			check:    func(t *testing.T, err error) { assert.True(t, auth.IsUserNotFound(err)) },
		},
		{
			name:     "repository record not found",
			creds:    auth.Credentials{Email: "a@b.com", Password: "pw"},
			storeErr: repository.NewRecordNotFound(),
			check:    func(t *testing.T, err error) { assert.True(t, auth.IsUserNotFound(err)) },
		},
		{
			name:      "wrong password",
			creds:     auth.Credentials{Email: "a@b.com", Password: "nope"},
			storeUser: user,
			check:     func(t *testing.T, err error) { assert.True(t, auth.IsUserNotAuthenticated(err)) },
		},
		{
			name:      "empty password",
			creds:     auth.Credentials{Email: "a@b.com", Password: ""},
			storeUser: user,
			check:     func(t *testing.T, err error) { assert.True(t, auth.IsUserNotAuthenticated(err)) },
		},
		{
			name:     "empty password unknown user",
			creds:    auth.Credentials{Email: "a@b.com", Password: ""},
			storeErr: auth.ErrUserNotFound,
			check:    func(t *testing.T, err error) { assert.True(t, auth.IsUserNotFound(err)) },
		},
		{
			name:     "store failure",
			creds:    auth.Credentials{Email: "a@b.com", Password: "pw"},
			storeErr: stderrors.New("connection reset"),
			check: func(t *testing.T, err error) {
				assert.False(t, auth.IsUserNotFound(err))
				assert.False(t, auth.IsUserNotAuthenticated(err))
				assert.True(t, errors.IsInternal(err))
				assert.Equal(t, 500, auth.HTTPStatus(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := new(MockUserStore)
			if !tt.skipStore {
				store.On("FindByEmail", ctx, "a@b.com").Return(tt.storeUser, tt.storeErr).Once()
			}

			res, err := newTestAuthenticator(store).Authenticate(ctx, tt.creds)
			assert.Nil(t, res)
			require.Error(t, err)
			tt.check(t, err)

			store.AssertExpectations(t)
		})
	}
}

func TestAuthenticateTrimsEmail(t *testing.T) {
	ctx := context.Background()
	store := new(MockUserStore)
	store.On("FindByEmail", ctx, "a@b.com").
		Return(&auth.User{ID: "user-1", PasswordHash: "pw"}, nil).Once()

	_, err := newTestAuthenticator(store).Authenticate(ctx, auth.Credentials{Email: "  a@b.com ", Password: "pw"})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestAuthenticateComparerFailure(t *testing.T) {
	store := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) {
		return &auth.User{ID: "user-1", PasswordHash: "stored"}, nil
	})

	comparer := new(MockPasswordComparer)
	comparer.On("Compare", "pw", "stored").Return(stderrors.New("hash is corrupt")).Once()

	authenticator := auth.NewAuthenticator(store, newTestTokenService()).WithPasswordComparer(comparer)

	_, err := authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	require.Error(t, err)
	assert.True(t, errors.IsInternal(err))
	assert.False(t, auth.IsUserNotAuthenticated(err))
	comparer.AssertExpectations(t)
}

func TestAuthenticateCodecFailure(t *testing.T) {
	store := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) {
		return &auth.User{ID: "user-1", PasswordHash: "pw"}, nil
	})

	codec := new(MockTokenCodec)
	codec.On("Encode", "user-1").Return("", errors.New("sign failed", errors.CategoryInternal)).Once()

	authenticator := auth.NewAuthenticator(store, codec).WithPasswordComparer(auth.PlaintextComparer{})

	_, err := authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	require.Error(t, err)
	assert.True(t, errors.IsInternal(err))
	codec.AssertExpectations(t)
}

func TestAuthenticatePassesContextToStore(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	var seen context.Context
	store := auth.UserStoreFunc(func(ctx context.Context, _ string) (*auth.User, error) {
		seen = ctx
		return nil, ctx.Err()
	})

	_, err := newTestAuthenticator(store).Authenticate(ctx, auth.NewCredentials("a@b.com", "pw"))
	assert.True(t, auth.IsUserNotFound(err))
	require.NotNil(t, seen)
	assert.Equal(t, "marker", seen.Value(ctxKey{}))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestAuthenticator(store).Authenticate(cancelled, auth.NewCredentials("a@b.com", "pw"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilUserStoreFunc(t *testing.T) {
	var store auth.UserStoreFunc
	_, err := newTestAuthenticator(store).Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	assert.True(t, auth.IsUserNotFound(err))
}

func TestAuthenticateEmitsActivity(t *testing.T) {
	users := map[string]*auth.User{
		"a@b.com": {ID: "user-1", Email: "a@b.com", PasswordHash: "pw"},
	}
	store := auth.UserStoreFunc(func(_ context.Context, email string) (*auth.User, error) {
		return users[email], nil
	})

	sink := &recordingSink{}
	authenticator := newTestAuthenticator(store).WithActivitySink(sink)
	ctx := context.Background()

	_, err := authenticator.Authenticate(ctx, auth.NewCredentials("a@b.com", "pw"))
	require.NoError(t, err)
	_, err = authenticator.Authenticate(ctx, auth.NewCredentials("a@b.com", "bad"))
	require.Error(t, err)
	_, err = authenticator.Authenticate(ctx, auth.NewCredentials("x@b.com", "pw"))
	require.Error(t, err)

	events := sink.Events()
	require.Len(t, events, 3)

	assert.Equal(t, auth.ActivityEventLoginSuccess, events[0].EventType)
	assert.Equal(t, "user-1", events[0].UserID)
	assert.Equal(t, auth.ActorRef{ID: "user-1", Type: "user"}, events[0].Actor)
	assert.False(t, events[0].OccurredAt.IsZero())

	assert.Equal(t, auth.ActivityEventLoginFailure, events[1].EventType)
	assert.Equal(t, auth.TextCodeUserNotAuthenticated, events[1].Metadata["error"])

	assert.Equal(t, auth.ActivityEventLoginFailure, events[2].EventType)
	assert.Equal(t, "unknown", events[2].Actor.Type)
	assert.Equal(t, auth.TextCodeUserNotFound, events[2].Metadata["error"])
}

func TestAuthenticateSinkErrorsAreLogged(t *testing.T) {
	store := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) {
		return &auth.User{ID: "user-1", PasswordHash: "pw"}, nil
	})

	logger := &captureLogger{}
	sink := &recordingSink{err: stderrors.New("sink down")}
	authenticator := newTestAuthenticator(store).WithActivitySink(sink).WithLogger(logger)

	res, err := authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Contains(t, logger.levels(), "warn")
}

func TestAuthenticatorLoggerProvider(t *testing.T) {
	logger := &captureLogger{}
	provider := &namedProvider{logger: logger}

	store := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) {
		return nil, stderrors.New("boom")
	})

	authenticator := newTestAuthenticator(store).WithLoggerProvider(provider)
	_, err := authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	require.Error(t, err)

	assert.Contains(t, provider.names, "auth")
	assert.Contains(t, logger.levels(), "error")
}

func TestParseTokenRejectsInvalid(t *testing.T) {
	authenticator := newTestAuthenticator(auth.UserStoreFunc(nil))

	_, err := authenticator.ParseToken("definitely.not.valid")
	assert.True(t, auth.IsTokenInvalid(err))
}

func TestParseTokenWrapsForeignCodecErrors(t *testing.T) {
	codec := new(MockTokenCodec)
	codec.On("Decode", "tok").Return("", stderrors.New("codec exploded")).Once()

	authenticator := auth.NewAuthenticator(auth.UserStoreFunc(nil), codec)
	assert.Same(t, codec, authenticator.TokenCodec())

	_, err := authenticator.ParseToken("tok")
	assert.True(t, auth.IsTokenInvalid(err))
	codec.AssertExpectations(t)
}

func TestAuthenticateConcurrent(t *testing.T) {
	store := auth.UserStoreFunc(func(_ context.Context, email string) (*auth.User, error) {
		return &auth.User{ID: "id-" + email, Email: email, PasswordHash: "pw"}, nil
	})
	authenticator := newTestAuthenticator(store).WithActivitySink(&recordingSink{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("user%d@example.com", i)

			password := "pw"
			if i%2 == 1 {
				password = "bad"
			}

			res, err := authenticator.Authenticate(context.Background(), auth.NewCredentials(email, password))
			if i%2 == 1 {
				assert.True(t, auth.IsUserNotAuthenticated(err))
				return
			}

			if !assert.NoError(t, err) {
				return
			}
			subject, err := authenticator.ParseToken(res.AccessToken)
			assert.NoError(t, err)
			assert.Equal(t, "id-"+email, subject)
		}(i)
	}
	wg.Wait()
}

func TestAuthenticateExpiredTokenAfterTTL(t *testing.T) {
	now := fixedNow
	codec := auth.NewTokenService([]byte(testSigningKey),
		auth.WithTokenTTL(time.Minute),
		auth.WithClock(func() time.Time { return now }),
	)

	store := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) {
		return &auth.User{ID: "user-1", PasswordHash: "pw"}, nil
	})
	authenticator := auth.NewAuthenticator(store, codec).WithPasswordComparer(auth.PlaintextComparer{})

	res, err := authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = authenticator.ParseToken(res.AccessToken)
	assert.True(t, auth.IsTokenInvalid(err))
}


func TestAuthenticateWithCorruptArgon2Hash(t *testing.T) {
	store := auth.UserStoreFunc(func(context.Context, string) (*auth.User, error) {
		return &auth.User{
			ID:           "user-1",
			PasswordHash: "$argon2id$v=19$m=65536,t=1,p=0$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2U",
		}, nil
	})

	sink := &recordingSink{}
	authenticator := auth.NewAuthenticator(store, newTestTokenService()).
		WithPasswordComparer(auth.Argon2Comparer{}).
		WithActivitySink(sink)

	var (
		res *auth.AuthResult
		err error
	)
	require.NotPanics(t, func() {
		res, err = authenticator.Authenticate(context.Background(), auth.NewCredentials("a@b.com", "pw"))
	})
	assert.Nil(t, res)
	assert.True(t, errors.IsInternal(err))
	assert.False(t, auth.IsUserNotAuthenticated(err))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, auth.ActivityEventLoginFailure, events[0].EventType)
	assert.Equal(t, "user-1", events[0].UserID)
}
