package repository

import (
	"context"
	"database/sql"
	"log"

	"github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// Manager groups the repositories that share a Bun connection.
type Manager struct {
	db     bun.IDB
	client *persistence.Client
	users  *UserRepository
}

func NewRepositoryManager(db bun.IDB) *Manager {
	return &Manager{
		db:    db,
		users: NewUserRepository(db),
	}
}

// NewManagerFromClient builds a Manager over the client's connection. Migrate
// runs the client's registered migrations.
func NewManagerFromClient(client *persistence.Client) *Manager {
	m := NewRepositoryManager(client.DB())
	m.client = client
	return m
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized", errors.CategoryInternal)
	}

	if m.users == nil {
		return errors.New("repository users should be initialized", errors.CategoryInternal)
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// Migrate applies the persistence client migrations.
func (m *Manager) Migrate(ctx context.Context) error {
	if m.client == nil {
		return errors.New("repository manager has no persistence client", errors.CategoryInternal)
	}
	if err := m.client.Migrate(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to migrate database")
	}
	return nil
}

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *Manager) Users() *UserRepository {
	return m.users
}
