package auth

import (
	"io/fs"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
)

const (
	PasswordSchemeBcrypt    = "bcrypt"
	PasswordSchemePlaintext = "plaintext"
	PasswordSchemeArgon2    = "argon2id"

	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"

	// MinSigningKeyLength is the shortest accepted HS256 secret, in bytes.
	MinSigningKeyLength = 32
)

// EnvPrefix marks the environment variables LoadConfig reads. Nested keys use
// a double underscore, so AUTH_DATABASE__DSN sets database.dsn.
const (
	EnvPrefix    = "AUTH_"
	EnvDelimiter = "__"

	EnvSigningKey  = EnvPrefix + "SIGNING_KEY"
	EnvIssuer      = EnvPrefix + "ISSUER"
	EnvDatabaseDSN = EnvPrefix + "DATABASE" + EnvDelimiter + "DSN"
)

// Environment variables override the file.
const (
	orderFile = 10
	orderEnv  = 20
)

// Options is the file backed Config implementation
type Options struct {
	SigningKey      string          `koanf:"signing_key" json:"-"`
	TokenExpiration int             `koanf:"token_expiration" json:"token_expiration"`
	Issuer          string          `koanf:"issuer" json:"issuer"`
	Audience        []string        `koanf:"audience" json:"audience"`
	PasswordScheme  string          `koanf:"password_scheme" json:"password_scheme"`
	Database        DatabaseOptions `koanf:"database" json:"database"`
	Logging         LoggingOptions  `koanf:"logging" json:"logging"`
}

// DatabaseOptions selects the user store backend
type DatabaseOptions struct {
	Driver string `koanf:"driver" json:"driver"`
	DSN    string `koanf:"dsn" json:"-"`
	Debug  bool   `koanf:"debug" json:"debug"`
}

// LoggingOptions configures the command logger
type LoggingOptions struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// DefaultOptions returns the baseline configuration. SigningKey is left empty
// and must be supplied by the file or the environment.
func DefaultOptions() *Options {
	return &Options{
		TokenExpiration: 24,
		Issuer:          "go-authn",
		PasswordScheme:  PasswordSchemeBcrypt,
		Database: DatabaseOptions{
			Driver: DatabaseDriverSQLite,
			DSN:    "file:authn.db?cache=shared",
		},
		Logging: LoggingOptions{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig decodes the YAML, JSON or TOML file at path over DefaultOptions,
// then applies AUTH_ prefixed environment variables. A missing file is not an
// error. Values of the form @file://path are read from disk.
func LoadConfig(path string) (*Options, error) {
	var loaders []gconfig.LoaderBuilder[*Options]
	if path != "" {
		loaders = append(loaders, gconfig.OptionalProvider(
			gconfig.FileProvider[*Options](path, orderFile),
			gconfig.DefaultErrorFilter(fs.ErrNotExist),
		))
	}
	loaders = append(loaders, gconfig.EnvProvider[*Options](EnvPrefix, EnvDelimiter, orderEnv))

	container, err := gconfig.New(DefaultOptions(),
		gconfig.WithoutDefualtConfigPath[*Options](),
		gconfig.WithValidation[*Options](false),
		gconfig.WithLoader(loaders...),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build config loader")
	}

	if err := container.Load(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load config").
			WithMetadata(map[string]any{"path": path})
	}

	cfg := container.Raw()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the options are usable
func (o *Options) Validate() error {
	err := validation.ValidateStruct(o,
		validation.Field(&o.SigningKey, validation.Required, validation.Length(MinSigningKeyLength, 0)),
		validation.Field(&o.TokenExpiration, validation.Min(0)),
		validation.Field(&o.PasswordScheme, validation.In(PasswordSchemeBcrypt, PasswordSchemeArgon2, PasswordSchemePlaintext)),
		validation.Field(&o.Database),
		validation.Field(&o.Logging),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid auth configuration")
	}
	return nil
}

// Validate checks the database options
func (d DatabaseOptions) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DatabaseDriverSQLite, DatabaseDriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

// Validate checks the logging options
func (l LoggingOptions) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Format, validation.In("console", "json", "pretty")),
	)
}

func (o *Options) GetSigningKey() string {
	return o.SigningKey
}

func (o *Options) GetTokenExpiration() int {
	return o.TokenExpiration
}

func (o *Options) GetIssuer() string {
	return o.Issuer
}

func (o *Options) GetAudience() []string {
	return o.Audience
}

func (o *Options) GetPasswordScheme() string {
	return o.PasswordScheme
}

var _ Config = (*Options)(nil)
