package application

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/swordot/portal/pkg/helpers"
)

// Hasher turns a plaintext password into the digest stored in accounts.password.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(digest, plain string) bool
	Name() string
}

const (
	HasherBcrypt = "bcrypt"
	HasherSHA1   = "sha1"
)

// NewHasher returns the hasher registered under name. An empty name selects bcrypt.
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HasherBcrypt:
		return BcryptHasher{}, nil
	case HasherSHA1:
		return SHA1Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

// SHA1Hasher produces the unsalted hex SHA-1 digest the legacy game server compares against.
// Weak: use it only while that server still reads accounts.password.
type SHA1Hasher struct{}

func (SHA1Hasher) Hash(plain string) (string, error) { return helpers.SHA1Hex(plain), nil }

func (SHA1Hasher) Verify(digest, plain string) bool {
	return subtle.ConstantTimeCompare([]byte(digest), []byte(helpers.SHA1Hex(plain))) == 1
}

func (SHA1Hasher) Name() string { return HasherSHA1 }

// BcryptHasher is the default: salted, slow, self-describing digests of the password's
// SHA-256, so there is no 72 byte limit. Cost 0 means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	if h.Cost == 0 {
		return helpers.HashPassword(plain)
	}
	return helpers.HashPasswordCost(plain, h.Cost)
}

func (BcryptHasher) Verify(digest, plain string) bool {
	return helpers.CompareHashAndPassword(digest, plain)
}

func (BcryptHasher) Name() string { return HasherBcrypt }
