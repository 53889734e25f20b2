// Package auth verifies email and password credentials against a user store
// and issues signed HS256 access tokens.
//
// Authentication:
//   - Auther looks the user up through a UserStore, checks the password with a
//     PasswordComparer (bcrypt by default) and encodes the user ID with a
//     TokenCodec. Failures are ErrUserNotFound or ErrUserNotAuthenticated.
//   - ParseToken returns the subject of a token, or ErrTokenInvalid for any
//     malformed, tampered, foreign or expired token.
//
// Stores:
//   - repository.UserRepository is a Bun backed store (sqlite or any Bun
//     dialect); pgstore.UserStore talks to Postgres through pgxpool.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther to describe
//     login events. Sinks run best-effort (errors are logged) so you can
//     forward to a database or queue without blocking authentication.
package auth
