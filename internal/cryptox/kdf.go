package cryptox

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// KDF parameter bounds. Scrypt uses roughly 128*N*r bytes of memory, so the
// ceiling keeps derivation under 256 MiB even with tuned-up parameters.
const (
	SaltSize      = 16
	DerivedKeyLen = 32

	maxKDFMemoryBytes = 256 << 20
)

// KDFParams are the tunable scrypt cost parameters recorded in the backup
// artifact header so old artifacts stay decryptable after retuning.
type KDFParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// DefaultKDFParams uses N=2^15, r=8 (about 32 MiB per derivation).
var DefaultKDFParams = KDFParams{N: 1 << 15, R: 8, P: 1}

func (p KDFParams) Validate() error {
	if p.N < 2 || p.N&(p.N-1) != 0 {
		return fmt.Errorf("scrypt N must be a power of two > 1, got %d", p.N)
	}
	if p.R < 1 || p.P < 1 {
		return fmt.Errorf("scrypt r and p must be positive, got r=%d p=%d", p.R, p.P)
	}
	if mem := 128 * int64(p.N) * int64(p.R); mem > maxKDFMemoryBytes {
		return fmt.Errorf("scrypt parameters need %d bytes, above the %d byte ceiling", mem, maxKDFMemoryBytes)
	}
	return nil
}

// NewSalt returns a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a passphrase into a 32-byte key using scrypt.
func DeriveKey(passphrase string, salt []byte, p KDFParams) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, DerivedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
