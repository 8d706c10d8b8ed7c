package cryptox

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 1024

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestStreamRoundTrip(t *testing.T) {
	key := testKey(t)

	sizes := []int{0, 1, testChunkSize - 1, testChunkSize, testChunkSize + 1, 3*testChunkSize + 17}
	for _, size := range sizes {
		plaintext := make([]byte, size)
		_, err := rand.Read(plaintext)
		require.NoError(t, err)

		nonce, err := NewNonce()
		require.NoError(t, err)

		var ciphertext bytes.Buffer
		var lastProgress int64
		tag, err := EncryptStream(&ciphertext, bytes.NewReader(plaintext), key, nonce, testChunkSize, func(n int64) {
			assert.GreaterOrEqual(t, n, lastProgress, "progress must not decrease")
			lastProgress = n
		})
		require.NoError(t, err, "size %d", size)
		require.Len(t, tag, gcmTagSize)
		assert.Equal(t, int64(size), lastProgress)

		var decrypted bytes.Buffer
		err = DecryptStream(&decrypted, bytes.NewReader(ciphertext.Bytes()), key, nonce, testChunkSize, tag, nil)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, plaintext, decrypted.Bytes(), "size %d", size)
	}
}

func TestDecryptStreamRejectsTampering(t *testing.T) {
	key := testKey(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	plaintext := make([]byte, 2*testChunkSize+100)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	tag, err := EncryptStream(&ciphertext, bytes.NewReader(plaintext), key, nonce, testChunkSize, nil)
	require.NoError(t, err)

	// flip a byte in the middle chunk
	tampered := append([]byte{}, ciphertext.Bytes()...)
	tampered[testChunkSize+gcmTagSize+10] ^= 0xff

	var out bytes.Buffer
	err = DecryptStream(&out, bytes.NewReader(tampered), key, nonce, testChunkSize, tag, nil)
	assert.ErrorIs(t, err, common.ErrDecryptFailed)
}

func TestDecryptStreamRejectsWrongKey(t *testing.T) {
	nonce, err := NewNonce()
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	tag, err := EncryptStream(&ciphertext, bytes.NewReader([]byte("archive bytes")), testKey(t), nonce, testChunkSize, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	err = DecryptStream(&out, bytes.NewReader(ciphertext.Bytes()), testKey(t), nonce, testChunkSize, tag, nil)
	assert.ErrorIs(t, err, common.ErrDecryptFailed)
	assert.Zero(t, out.Len(), "no partial plaintext on failure")
}

func TestDecryptStreamDetectsTruncation(t *testing.T) {
	key := testKey(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	plaintext := make([]byte, 3*testChunkSize)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	tag, err := EncryptStream(&ciphertext, bytes.NewReader(plaintext), key, nonce, testChunkSize, nil)
	require.NoError(t, err)

	// drop the final chunk entirely: every remaining chunk still
	// authenticates, but the final tag no longer matches
	truncated := ciphertext.Bytes()[:2*(testChunkSize+gcmTagSize)]

	var out bytes.Buffer
	err = DecryptStream(&out, bytes.NewReader(truncated), key, nonce, testChunkSize, tag, nil)
	assert.ErrorIs(t, err, common.ErrDecryptFailed)
}

func TestChunkNonceUnique(t *testing.T) {
	base := make([]byte, NonceSize)

	seen := map[string]bool{}
	for i := uint64(0); i < 1000; i++ {
		n := string(chunkNonce(base, i))
		assert.False(t, seen[n], "chunk nonce reused at %d", i)
		seen[n] = true
	}
	assert.Equal(t, base, chunkNonce(base, 0), "counter zero must leave the base nonce unchanged")
}
