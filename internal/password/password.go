// Package password hashes and verifies user credentials.
//
// New credentials are bcrypt hashes. Verify also accepts the legacy forms the
// ledger may load from older snapshots: a lowercase SHA-256 hex digest, or a
// plaintext value that predates hashing altogether. NeedsRehash reports those
// so the caller can upgrade them after a successful login.
package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the one-way credential function used by the ledger.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
	NeedsRehash(stored string) bool
}

// Bcrypt implements Hasher with golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a Hasher using cost, or bcrypt.DefaultCost when cost is 0.
func NewBcrypt(cost int) *Bcrypt {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{Cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b *Bcrypt) Verify(password, stored string) bool {
	switch {
	case isBcrypt(stored):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	case isSHA256Hex(stored):
		return subtle.ConstantTimeCompare([]byte(SHA256Hex(password)), []byte(stored)) == 1
	default:
		return stored != "" && subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
	}
}

func (b *Bcrypt) NeedsRehash(stored string) bool {
	if !isBcrypt(stored) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(stored))
	return err != nil || cost != b.Cost
}

// SHA256Hex is the legacy digest: lowercase hex of SHA-256 over the raw bytes.
func SHA256Hex(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
