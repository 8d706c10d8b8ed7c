package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flatwiki/flatwiki/internal/common"
)

// randRead is a seam for testing nonce generation failures.
var randRead = rand.Read

// DefaultChunkSize is the plaintext chunk size for streaming encryption.
// Go's AEAD API is one-shot, so large archives are sealed chunk by chunk;
// each chunk gets its own nonce (base nonce XOR chunk counter) and tag.
const DefaultChunkSize = 4 << 20

// NonceSize is the AES-GCM nonce length used throughout the artifact format.
const NonceSize = 12

// NewNonce returns a fresh random base nonce for a streaming encryption.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := randRead(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// chunkNonce derives the nonce for chunk i by XOR-ing a big-endian counter
// into the tail of the base nonce, so no two chunks share a nonce and
// reordered chunks fail authentication.
func chunkNonce(base []byte, i uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], i)
	for j := 0; j < 8; j++ {
		nonce[len(nonce)-8+j] ^= ctr[j]
	}
	return nonce
}

// EncryptStream reads plaintext from src, seals it in chunkSize chunks under
// key and writes the framed ciphertext to dst. progress, if non-nil, is
// called with the cumulative plaintext byte count. The returned tag is the
// authentication tag of the final chunk, captured on completion.
//
// Empty input still produces one (empty) sealed chunk, so every stream
// carries at least one tag.
func EncryptStream(dst io.Writer, src io.Reader, key, baseNonce []byte, chunkSize int, progress func(int64)) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(baseNonce) != aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", aead.NonceSize(), len(baseNonce))
	}

	buf := make([]byte, chunkSize)
	var total int64
	var chunk uint64
	var tag []byte

	for {
		n, rerr := io.ReadFull(src, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read plaintext: %w", rerr)
		}

		// The first chunk is written even when empty; later empty reads
		// just terminate the stream.
		if n > 0 || chunk == 0 {
			sealed := aead.Seal(nil, chunkNonce(baseNonce, chunk), buf[:n], nil)
			if _, werr := dst.Write(sealed); werr != nil {
				return nil, fmt.Errorf("write ciphertext: %w", werr)
			}
			tag = sealed[len(sealed)-gcmTagSize:]
			chunk++
			total += int64(n)
			if progress != nil {
				progress(total)
			}
		}

		if rerr != nil { // EOF or short final chunk
			return tag, nil
		}
	}
}

// DecryptStream reverses EncryptStream: it reads framed ciphertext chunks
// from src, opens each one and writes the plaintext to dst. When
// expectedTag is non-nil the final chunk's tag must match it, which catches
// truncation of whole trailing chunks. Any authentication failure aborts
// with common.ErrDecryptFailed before the offending chunk's plaintext is
// written.
func DecryptStream(dst io.Writer, src io.Reader, key, baseNonce []byte, chunkSize int, expectedTag []byte, progress func(int64)) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	aead, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(baseNonce) != aead.NonceSize() {
		return fmt.Errorf("nonce must be %d bytes, got %d", aead.NonceSize(), len(baseNonce))
	}

	buf := make([]byte, chunkSize+gcmTagSize)
	var total int64
	var chunk uint64
	var lastTag []byte

	for {
		n, rerr := io.ReadFull(src, buf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read ciphertext: %w", rerr)
		}

		if n > 0 || chunk == 0 {
			if n < gcmTagSize {
				return common.ErrDecryptFailed
			}
			plaintext, oerr := aead.Open(nil, chunkNonce(baseNonce, chunk), buf[:n], nil)
			if oerr != nil {
				return common.ErrDecryptFailed
			}
			if _, werr := dst.Write(plaintext); werr != nil {
				return fmt.Errorf("write plaintext: %w", werr)
			}
			lastTag = append(lastTag[:0], buf[n-gcmTagSize:n]...)
			chunk++
			total += int64(n)
			if progress != nil {
				progress(total)
			}
		}

		if rerr != nil {
			break
		}
	}

	if expectedTag != nil && !hmac.Equal(lastTag, expectedTag) {
		return common.ErrDecryptFailed
	}
	return nil
}
