// Package auth verifies HTTP basic credentials against bcrypt hashes
// configured for the daemon.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoUsers            = errors.New("auth enabled without users")
)

// User is one account allowed to call the API.
type User struct {
	Username     string `toml:"username" mapstructure:"username"`
	PasswordHash string `toml:"password_hash" mapstructure:"password_hash"`
}

// Basic checks username/password pairs.
type Basic struct {
	users map[string][]byte
	// dummy is compared for unknown users so lookups take the same time
	dummy []byte
}

func NewBasic(users []User) (*Basic, error) {
	if len(users) == 0 {
		return nil, ErrNoUsers
	}
	b := &Basic{users: make(map[string][]byte, len(users))}
	for _, u := range users {
		if u.Username == "" {
			return nil, errors.New("auth user without username")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth user %q: password_hash is not a bcrypt hash: %w", u.Username, err)
		}
		if _, dup := b.users[u.Username]; dup {
			return nil, fmt.Errorf("auth user %q defined twice", u.Username)
		}
		b.users[u.Username] = []byte(u.PasswordHash)
		if b.dummy == nil {
			b.dummy = []byte(u.PasswordHash)
		}
	}
	return b, nil
}

// Authenticate returns ErrInvalidCredentials unless username and password match.
func (b *Basic) Authenticate(username, password string) error {
	hash, ok := b.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(b.dummy, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in config.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
