package repository

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-authn"
	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserModel is the Bun model for user records.
type UserModel struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           string    `bun:"id,pk"`
	Email        string    `bun:"email,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// UserRepository implements auth.UserStore using Bun.
type UserRepository struct {
	db     bun.IDB
	driver string
}

// NewUserRepository creates a new repository.
func NewUserRepository(db bun.IDB) *UserRepository {
	return &UserRepository{
		db:     db,
		driver: db.Dialect().Name().String(),
	}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx bun.Tx) *UserRepository {
	return &UserRepository{db: tx, driver: r.driver}
}

// FindByEmail implements auth.UserStore. Emails are matched case insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, repository.NewRecordNotFound()
	}

	var model UserModel
	err := r.db.NewSelect().
		Model(&model).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, repository.MapDatabaseError(err, r.driver)
	}

	return model.toUser(), nil
}

// Create stores user. An empty ID is replaced with a new UUID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user == nil {
		return nil, errors.New("user is required", errors.CategoryBadInput)
	}

	model := fromUser(user)
	if model.Email == "" {
		return nil, errors.New("user email is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}

	now := time.Now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return nil, repository.MapDatabaseError(err, r.driver)
	}

	return model.toUser(), nil
}

// Delete removes the user with id.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*UserModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, r.driver)
	}
	return expectDeleted(res)
}

// DeleteByEmail removes the user with email.
func (r *UserRepository) DeleteByEmail(ctx context.Context, email string) error {
	res, err := r.db.NewDelete().
		Model((*UserModel)(nil)).
		Where("email = ?", normalizeEmail(email)).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, r.driver)
	}
	return expectDeleted(res)
}

func expectDeleted(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to read rows affected")
	}
	if n == 0 {
		return repository.NewRecordNotFound()
	}
	return nil
}

func (m *UserModel) toUser() *auth.User {
	return &auth.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
	}
}

func fromUser(u *auth.User) *UserModel {
	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}

	return &UserModel{
		ID:           id,
		Email:        normalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ auth.UserStore = (*UserRepository)(nil)
