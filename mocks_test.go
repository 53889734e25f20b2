package auth_test

import (
	"context"
	"sync"

	auth "github.com/goliatone/go-authn"
	"github.com/stretchr/testify/mock"
)

// MockUserStore implements auth.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// MockTokenCodec implements auth.TokenCodec
type MockTokenCodec struct {
	mock.Mock
}

func (m *MockTokenCodec) Encode(subjectID string) (string, error) {
	args := m.Called(subjectID)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCodec) Decode(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

// MockPasswordComparer implements auth.PasswordComparer
type MockPasswordComparer struct {
	mock.Mock
}

func (m *MockPasswordComparer) Compare(password, stored string) error {
	args := m.Called(password, stored)
	return args.Error(0)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
	err    error
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Events() []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.ActivityEvent(nil), s.events...)
}

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Trace(message string, args ...any) { l.record("trace", message, args...) }
func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }
func (l *captureLogger) Fatal(message string, args ...any) { l.record("fatal", message, args...) }
func (l *captureLogger) WithContext(context.Context) auth.Logger {
	return l
}

func (l *captureLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.level)
	}
	return out
}

type namedProvider struct {
	names  []string
	logger auth.Logger
}

func (p *namedProvider) GetLogger(name string) auth.Logger {
	p.names = append(p.names, name)
	return p.logger
}
