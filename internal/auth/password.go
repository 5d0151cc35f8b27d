package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// dummyHash is compared against when the user does not exist so that login
// timing does not reveal which usernames are registered.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("moviegraph-timing-equaliser"), bcrypt.DefaultCost)

// VerifyPassword reports whether password matches hash. An empty hash (unknown
// user) still costs one bcrypt comparison and never matches.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
