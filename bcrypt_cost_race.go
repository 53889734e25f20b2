//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds run the hashing tests several times slower
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
