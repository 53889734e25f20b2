package auth

import (
	"fmt"
	"regexp"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenPattern matches the compact serialization the service emits:
// three dot separated base64url segments.
var TokenPattern = regexp.MustCompile(`^[A-Za-z0-9\-_=]+\.[A-Za-z0-9\-_=]+\.[A-Za-z0-9\-_.+/=]*$`)

// LooksLikeToken reports whether s has the shape of an access token.
// It does not verify anything.
func LooksLikeToken(s string) bool {
	return TokenPattern.MatchString(s)
}

// TokenService signs and verifies HS256 access tokens
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenOption configures a TokenService
type TokenOption func(*TokenService)

// WithTokenTTL sets how long issued tokens stay valid. Zero disables expiry.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(ts *TokenService) {
		if ttl < 0 {
			ttl = 0
		}
		ts.ttl = ttl
	}
}

// WithIssuer sets the iss claim and requires it on decode
func WithIssuer(issuer string) TokenOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithAudience sets the aud claim. Decoding requires at least one match.
func WithAudience(audience ...string) TokenOption {
	return func(ts *TokenService) {
		ts.audience = slices.Clone(jwt.ClaimStrings(audience))
	}
}

// WithClock overrides the time source, mostly for tests
func WithClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		signingKey: slices.Clone(signingKey),
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	_, ts.logger = ResolveLogger("auth.token", nil, ts.logger)

	return ts
}

// NewTokenServiceFromConfig builds a TokenService from a validated Config
func NewTokenServiceFromConfig(cfg Config, opts ...TokenOption) (*TokenService, error) {
	if cfg == nil {
		return nil, errors.New("token service config is required", errors.CategoryBadInput)
	}

	if v, ok := cfg.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	base := []TokenOption{
		WithTokenTTL(time.Duration(cfg.GetTokenExpiration()) * time.Hour),
		WithIssuer(cfg.GetIssuer()),
		WithAudience(cfg.GetAudience()...),
	}

	return NewTokenService([]byte(cfg.GetSigningKey()), append(base, opts...)...), nil
}

// Encode creates a signed token whose subject is subjectID
func (ts *TokenService) Encode(subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("subject id must not be empty", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	// JSON encoding would replace invalid bytes with U+FFFD
	if !utf8.ValidString(subjectID) {
		return "", errors.New("subject id must be valid UTF-8", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   ts.issuer,
			Subject:  subjectID,
			Audience: ts.audience,
			IssuedAt: jwt.NewNumericDate(now),
		},
		UID: subjectID,
	}

	if ts.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ts.ttl))
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		ts.logger.Error("TokenService failed to sign token", "error", err)
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Decode verifies the token and returns its subject
func (ts *TokenService) Decode(tokenString string) (string, error) {
	claims, err := ts.Claims(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// Claims verifies the token and returns the decoded claims
func (ts *TokenService) Claims(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, tokenInvalid(TextCodeTokenMalformed, "token is empty", nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, ts.keyFunc, ts.parserOptions()...)
	if err != nil {
		return nil, ts.classify(err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService could not decode claims")
		return nil, tokenInvalid(TextCodeTokenMalformed, "token claims could not be decoded", nil)
	}

	if claims.Subject() == "" {
		return nil, tokenInvalid(TextCodeTokenMalformed, "token has no subject", nil)
	}

	if claims.UID != "" && claims.UID != claims.Subject() {
		return nil, tokenInvalid(TextCodeTokenMalformed, "token subject mismatch", nil)
	}

	if len(ts.audience) > 0 && !ts.audienceAccepted(claims.Audience) {
		return nil, tokenInvalid(TextCodeTokenInvalid, "token has invalid audience", jwt.ErrTokenInvalidAudience)
	}

	return claims, nil
}

func (ts *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return ts.signingKey, nil
}

func (ts *TokenService) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(ts.now),
	}

	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	if ts.ttl > 0 {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	return opts
}

func (ts *TokenService) audienceAccepted(aud jwt.ClaimStrings) bool {
	for _, want := range ts.audience {
		if slices.Contains(aud, want) {
			return true
		}
	}
	return false
}

func (ts *TokenService) classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		ts.logger.Debug("TokenService rejected expired token")
		return tokenInvalid(TextCodeTokenExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		ts.logger.Warn("TokenService rejected token signature", "error", err)
		return tokenInvalid(TextCodeTokenSignatureInvalid, "token signature invalid", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return tokenInvalid(TextCodeTokenMalformed, "token malformed", err)
	default:
		ts.logger.Debug("TokenService rejected token claims", "error", err)
		return tokenInvalid(TextCodeTokenInvalid, "token claims invalid", err)
	}
}

var _ TokenCodec = (*TokenService)(nil)
