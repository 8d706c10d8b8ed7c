package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// small parameters keep the tests fast
var testKDFParams = KDFParams{N: 1 << 10, R: 8, P: 1}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	key1, err := DeriveKey("passphrase", salt, testKDFParams)
	require.NoError(t, err)
	key2, err := DeriveKey("passphrase", salt, testKDFParams)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, DerivedKeyLen)
}

func TestDeriveKeyDifferentInputs(t *testing.T) {
	salt := []byte("0123456789abcdef")

	key1, err := DeriveKey("passphrase", salt, testKDFParams)
	require.NoError(t, err)
	key2, err := DeriveKey("other", salt, testKDFParams)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)

	key3, err := DeriveKey("passphrase", []byte("fedcba9876543210"), testKDFParams)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)
}

func TestKDFParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultKDFParams.Validate())

	assert.Error(t, KDFParams{N: 3, R: 8, P: 1}.Validate(), "N must be a power of two")
	assert.Error(t, KDFParams{N: 1, R: 8, P: 1}.Validate())
	assert.Error(t, KDFParams{N: 1 << 10, R: 0, P: 1}.Validate())
	assert.Error(t, KDFParams{N: 1 << 10, R: 8, P: 0}.Validate())

	// memory ceiling: 128 * 2^24 * 8 = 16 GiB
	assert.Error(t, KDFParams{N: 1 << 24, R: 8, P: 1}.Validate())
}

func TestNewSalt(t *testing.T) {
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)

	assert.Len(t, s1, SaltSize)
	assert.NotEqual(t, s1, s2)
}
