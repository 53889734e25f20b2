package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	auth "github.com/goliatone/go-authn"
	"github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

const defaultPingTimeout = 5 * time.Second

// ClientConfig implements persistence.Config
type ClientConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c ClientConfig) GetDebug() bool {
	return c.Debug
}

func (c ClientConfig) GetDriver() string {
	return c.Driver
}

func (c ClientConfig) GetServer() string {
	return c.DSN
}

func (c ClientConfig) GetDatabase() string {
	return ""
}

func (c ClientConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func (c ClientConfig) GetOtelIdentifier() string {
	return ""
}

// NewClient registers UserModel and the embedded migrations on a new
// persistence client over sqlDB. Call Migrate on the result before use.
func NewClient(cfg persistence.Config, sqlDB *sql.DB, dialect schema.Dialect, logger auth.Logger) (*persistence.Client, error) {
	persistence.RegisterModel((*UserModel)(nil))

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "failed to connect to database").
			WithMetadata(map[string]any{"driver": cfg.GetDriver()})
	}

	if logger != nil {
		client.SetLogger(func(format string, a ...any) {
			logger.Debug(fmt.Sprintf(format, a...))
		})
	}

	migrations, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read embedded migrations")
	}
	client.RegisterSQLMigrations(migrations)

	return client, nil
}

// OpenSQLite opens the sqlite database at cfg.DSN, applies the migrations and
// returns a Manager over it with a func that closes the connection.
func OpenSQLite(ctx context.Context, cfg ClientConfig, logger auth.Logger) (*Manager, func() error, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite database")
	}

	client, err := NewClient(cfg, sqlDB, sqlitedialect.New(), logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	mgr := NewManagerFromClient(client)
	if err := mgr.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	if report := client.Report(); logger != nil && report != nil && !report.IsZero() {
		logger.Info("migrations applied", "group", report.String())
	}

	return mgr, sqlDB.Close, nil
}
