// Package cryptox implements the symmetric crypto used by the artifact
// core: the versioned secret envelope, passphrase key derivation and
// chunked streaming AEAD for backup archives.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/flatwiki/flatwiki/internal/common"
)

// EnvelopePrefix marks an encrypted secret value. Anything without the
// prefix is treated as legacy plaintext and returned verbatim.
const EnvelopePrefix = "enc:v1:"

const gcmTagSize = 16

// KeyFromSecret turns a configured secret string into a 32-byte AES key.
func KeyFromSecret(secret string) []byte {
	hash := sha256.Sum256([]byte(secret))
	return hash[:]
}

// Codec encrypts and decrypts short secret strings. Values are produced
// under the active key only; decryption falls back to one designated
// legacy key so already-stored values survive a key rotation.
type Codec struct {
	active []byte
	legacy []byte
}

// NewCodec builds a Codec from the configured secret strings. An empty
// active secret disables encryption. The legacy secret is ignored when
// empty or identical to the active one.
func NewCodec(activeSecret, legacySecret string) *Codec {
	c := &Codec{}
	if activeSecret != "" {
		c.active = KeyFromSecret(activeSecret)
	}
	if legacySecret != "" && legacySecret != activeSecret {
		c.legacy = KeyFromSecret(legacySecret)
	}
	return c
}

// Encrypt seals plaintext under the active key and returns the envelope
// string. Empty plaintext passes through as the empty string rather than
// an envelope around nothing. Returns common.ErrNoSecretKey when no
// active key is configured.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if c.active == nil {
		return "", common.ErrNoSecretKey
	}

	aead, err := newGCM(c.active)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	data, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	b64 := base64.StdEncoding
	return EnvelopePrefix + b64.EncodeToString(iv) + "." + b64.EncodeToString(tag) + "." + b64.EncodeToString(data), nil
}

// Decrypt opens an envelope string. Values without the envelope prefix are
// returned verbatim. Sealed values are tried under the active key first,
// then under the legacy key. Exhausting both fails closed with
// common.ErrDecryptFailed; partial plaintext is never returned.
func (c *Codec) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, EnvelopePrefix) {
		return value, nil
	}

	iv, tag, data, err := splitEnvelope(value)
	if err != nil {
		return "", common.ErrDecryptFailed
	}

	sealed := append(append([]byte{}, data...), tag...)
	for _, key := range [][]byte{c.active, c.legacy} {
		if key == nil {
			continue
		}
		aead, err := newGCM(key)
		if err != nil {
			continue
		}
		if len(iv) != aead.NonceSize() {
			continue
		}
		if plaintext, err := aead.Open(nil, iv, sealed, nil); err == nil {
			return string(plaintext), nil
		}
	}

	return "", common.ErrDecryptFailed
}

func splitEnvelope(value string) (iv, tag, data []byte, err error) {
	parts := strings.Split(strings.TrimPrefix(value, EnvelopePrefix), ".")
	if len(parts) != 3 {
		return nil, nil, nil, fmt.Errorf("expected 3 envelope parts, got %d", len(parts))
	}

	b64 := base64.StdEncoding
	if iv, err = b64.DecodeString(parts[0]); err != nil {
		return nil, nil, nil, err
	}
	if tag, err = b64.DecodeString(parts[1]); err != nil {
		return nil, nil, nil, err
	}
	if data, err = b64.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, err
	}
	if len(tag) != gcmTagSize {
		return nil, nil, nil, fmt.Errorf("bad tag length %d", len(tag))
	}
	return iv, tag, data, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
