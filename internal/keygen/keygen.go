// Package keygen creates and verifies loader key material.
package keygen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// PrefixLength is the number of public characters a credential starts with.
	PrefixLength = 8
	// KeyLength is the number of secret characters following the prefix.
	KeyLength = 32
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var ErrMalformedCredential = errors.New("malformed loader credential")

// Generator produces prefix/key pairs and hashes keys with bcrypt.
type Generator struct {
	cost int
}

// NewGenerator returns a Generator hashing at the given bcrypt cost. A cost
// outside bcrypt's accepted range falls back to bcrypt.DefaultCost.
func NewGenerator(cost int) *Generator {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Generator{cost: cost}
}

// Generate returns a fresh prefix, the raw key, and the bcrypt hash of the key.
func (g *Generator) Generate() (prefix, key, hash string, err error) {
	if prefix, err = randomString(PrefixLength); err != nil {
		return "", "", "", fmt.Errorf("generate prefix: %w", err)
	}
	if key, err = randomString(KeyLength); err != nil {
		return "", "", "", fmt.Errorf("generate key: %w", err)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), g.cost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash key: %w", err)
	}
	return prefix, key, string(h), nil
}

// Split breaks a presented credential into its prefix and secret parts.
func Split(credential string) (prefix, key string, err error) {
	if len(credential) != PrefixLength+KeyLength {
		return "", "", ErrMalformedCredential
	}
	return credential[:PrefixLength], credential[PrefixLength:], nil
}

// Verify reports whether key matches the stored bcrypt hash.
func Verify(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
