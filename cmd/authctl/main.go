package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	auth "github.com/goliatone/go-authn"
	"github.com/goliatone/go-authn/activitymap"
	"github.com/goliatone/go-authn/pgstore"
	"github.com/goliatone/go-authn/repository"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
)

const usage = `usage: authctl [-config auth.yml] <command> [flags]

commands:
  login  -email E -password P   authenticate and print an access token
  decode TOKEN                   print the subject of a token
  hash   -password P [-scheme S]  print a bcrypt or argon2id hash for seeding records
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("authctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "auth.yml", "path to the YAML, JSON or TOML config file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command", errors.CategoryBadInput)
	}

	// hash does not need a signing key, so it runs before config validation
	if fs.Arg(0) == "hash" {
		logger := newLogger(auth.DefaultOptions(), stderr)
		return runHash(fs.Args()[1:], stdout, stderr, logger)
	}

	cfg, err := auth.LoadConfig(*configPath)
	if err != nil {
		newLogger(auth.DefaultOptions(), stderr).Error("failed to load config", "error", err, "path", *configPath)
		return err
	}

	logger := newLogger(cfg, stderr)

	switch cmd := fs.Arg(0); cmd {
	case "login":
		return runLogin(ctx, cfg, fs.Args()[1:], stdout, stderr, logger)
	case "decode":
		return runDecode(cfg, fs.Args()[1:], stdout, logger)
	default:
		fs.Usage()
		err := errors.New("unknown command", errors.CategoryBadInput).
			WithMetadata(map[string]any{"command": cmd})
		logger.Error("authctl failed", "error", err)
		return err
	}
}

func newLogger(cfg *auth.Options, w io.Writer) glog.Logger {
	base := glog.NewLogger(
		glog.WithName("authctl"),
		glog.WithLevel(cfg.Logging.Level),
		glog.WithLoggerType(cfg.Logging.Format),
		glog.WithWriter(w),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
	return base.GetLogger("authctl")
}

func runLogin(ctx context.Context, cfg *auth.Options, args []string, stdout, stderr io.Writer, logger glog.Logger) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "user password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds := auth.NewCredentials(*email, *password)
	if err := creds.Validate(); err != nil {
		logger.Error("invalid credentials", "error", err)
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open user store", "error", err, "driver", cfg.Database.Driver)
		return err
	}
	defer closeStore()

	codec, err := auth.NewTokenServiceFromConfig(cfg, auth.WithTokenLogger(logger))
	if err != nil {
		logger.Error("failed to build token service", "error", err)
		return err
	}

	comparer, err := auth.PasswordComparerFor(cfg.PasswordScheme)
	if err != nil {
		logger.Error("failed to resolve password scheme", "error", err)
		return err
	}

	authenticator := auth.NewAuthenticator(store, codec).
		WithLogger(logger).
		WithPasswordComparer(comparer).
		WithActivitySink(activitymap.LogSink(logger))

	res, err := authenticator.Authenticate(ctx, creds)
	if err != nil {
		logger.Error("login failed", "error", err, "status", auth.HTTPStatus(err))
		return err
	}

	fmt.Fprintln(stdout, print.MaybePrettyJSON(res))
	return nil
}

func runDecode(cfg *auth.Options, args []string, stdout io.Writer, logger glog.Logger) error {
	if len(args) != 1 {
		err := errors.New("decode expects exactly one token", errors.CategoryBadInput)
		logger.Error("decode failed", "error", err)
		return err
	}

	codec, err := auth.NewTokenServiceFromConfig(cfg, auth.WithTokenLogger(logger))
	if err != nil {
		logger.Error("failed to build token service", "error", err)
		return err
	}

	claims, err := codec.Claims(args[0])
	if err != nil {
		logger.Error("decode failed", "error", err)
		return err
	}

	out := map[string]any{
		"subject":  claims.UserID(),
		"issuedAt": claims.IssuedAt().UTC().Format(time.RFC3339),
	}
	if exp := claims.Expires(); !exp.IsZero() {
		out["expiresAt"] = exp.UTC().Format(time.RFC3339)
	}

	fmt.Fprintln(stdout, print.MaybePrettyJSON(out))
	return nil
}

func runHash(args []string, stdout, stderr io.Writer, logger glog.Logger) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	password := fs.String("password", "", "password to hash")
	scheme := fs.String("scheme", auth.PasswordSchemeBcrypt, "bcrypt or argon2id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var hash string
	var err error
	switch *scheme {
	case auth.PasswordSchemeArgon2:
		hash, err = auth.HashPasswordArgon2(*password, auth.DefaultArgon2Params)
	case auth.PasswordSchemeBcrypt:
		hash, err = auth.HashPassword(*password)
	default:
		err = errors.New("unsupported hash scheme", errors.CategoryBadInput).
			WithMetadata(map[string]any{"scheme": *scheme})
	}
	if err != nil {
		logger.Error("hash failed", "error", err)
		return err
	}

	fmt.Fprintln(stdout, hash)
	return nil
}

func openStore(ctx context.Context, cfg *auth.Options, logger glog.Logger) (auth.UserStore, func(), error) {
	switch cfg.Database.Driver {
	case auth.DatabaseDriverPostgres:
		pool, err := pgstore.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.New(pool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		mgr, closeDB, err := repository.OpenSQLite(ctx, repository.ClientConfig{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN,
			Debug:  cfg.Database.Debug,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return mgr.Users(), func() { _ = closeDB() }, nil
	}
}
