package backup

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/flatwiki/flatwiki/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArtifactName(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	name := newArtifactName(ts)
	assert.Equal(t, "flatwiki-backup-20260102030405.tar.gz.enc", name)
	assert.Regexp(t, artifactNamePattern, name)
}

func TestResolveArtifactPath(t *testing.T) {
	valid := "flatwiki-backup-20260102030405.tar.gz.enc"

	path, err := ResolveArtifactPath("/backups", valid)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/backups", valid), path)

	for _, name := range []string{
		"",
		"../../etc/passwd",
		"../" + valid,
		valid + "/../x",
		"/etc/" + valid,
		"flatwiki-backup-2026.tar.gz.enc",
		"flatwiki-backup-20260102030405.tar.gz",
		valid + ".sha256",
		"FLATWIKI-BACKUP-20260102030405.TAR.GZ.ENC",
	} {
		_, err := ResolveArtifactPath("/backups", name)
		assert.ErrorIs(t, err, common.ErrInvalidArtifactName, "name %q must be rejected", name)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	params := cryptox.KDFParams{N: 1 << 10, R: 8, P: 1}
	salt := bytes.Repeat([]byte{1}, 16)
	iv := bytes.Repeat([]byte{2}, 12)
	tag := bytes.Repeat([]byte{3}, 16)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var buf bytes.Buffer
	h := newHeader(params, salt, iv, tag, createdAt)
	require.NoError(t, h.writeTo(&buf))
	buf.WriteString("CIPHERTEXT")

	r := bufio.NewReader(&buf)
	got, err := readHeader(r)
	require.NoError(t, err)

	assert.Equal(t, headerVersion, got.Version)
	assert.Equal(t, headerAlgorithm, got.Algorithm)
	assert.Equal(t, headerKDF{Name: kdfName, N: 1 << 10, R: 8, P: 1}, got.KDF)
	assert.Equal(t, cryptox.DefaultChunkSize, got.ChunkSize)
	assert.Equal(t, createdAt, got.CreatedAt)

	gotSalt, gotIV, gotTag, err := got.decode()
	require.NoError(t, err)
	assert.Equal(t, salt, gotSalt)
	assert.Equal(t, iv, gotIV)
	assert.Equal(t, tag, gotTag)

	// the reader is left at the first ciphertext byte
	rest := make([]byte, 10)
	_, err = r.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, "CIPHERTEXT", string(rest))
}

func TestReadHeaderRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"wrong magic", "NOT-A-BACKUP\n{}\n"},
		{"missing metadata line", artifactMagic + "\n"},
		{"malformed json", artifactMagic + "\nnot-json\n"},
		{"wrong version", artifactMagic + "\n{\"v\":9,\"alg\":\"aes-256-gcm\",\"kdf\":{\"name\":\"scrypt\",\"n\":1024,\"r\":8,\"p\":1},\"chunk\":4}\n"},
		{"wrong algorithm", artifactMagic + "\n{\"v\":1,\"alg\":\"rot13\",\"kdf\":{\"name\":\"scrypt\",\"n\":1024,\"r\":8,\"p\":1},\"chunk\":4}\n"},
		{"wrong kdf", artifactMagic + "\n{\"v\":1,\"alg\":\"aes-256-gcm\",\"kdf\":{\"name\":\"md5\",\"n\":1024,\"r\":8,\"p\":1},\"chunk\":4}\n"},
		{"bad chunk size", artifactMagic + "\n{\"v\":1,\"alg\":\"aes-256-gcm\",\"kdf\":{\"name\":\"scrypt\",\"n\":1024,\"r\":8,\"p\":1},\"chunk\":0}\n"},
		{"oversized chunk size", artifactMagic + "\n{\"v\":1,\"alg\":\"aes-256-gcm\",\"kdf\":{\"name\":\"scrypt\",\"n\":1024,\"r\":8,\"p\":1},\"chunk\":4611686018427387904}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readHeader(bufio.NewReader(bytes.NewBufferString(tt.raw)))
			assert.ErrorIs(t, err, common.ErrInvalidArtifact)
		})
	}
}

func TestChecksumSidecarAndVerify(t *testing.T) {
	dir := t.TempDir()
	name := newArtifactName(time.Now())
	path := filepath.Join(dir, name)

	var buf bytes.Buffer
	h := newHeader(cryptox.KDFParams{N: 1 << 10, R: 8, P: 1},
		make([]byte, 16), make([]byte, 12), make([]byte, 16), time.Now())
	require.NoError(t, h.writeTo(&buf))
	buf.WriteString("payload")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o660))

	sum, err := writeChecksumSidecar(path)
	require.NoError(t, err)
	assert.Len(t, sum, 64)

	got, err := readChecksumSidecar(path)
	require.NoError(t, err)
	assert.Equal(t, sum, got)

	require.NoError(t, VerifyArtifact(dir, name))

	// flip one payload byte and the checksum no longer matches
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o660))
	assert.ErrorIs(t, VerifyArtifact(dir, name), common.ErrInvalidArtifact)
}

func TestListArtifacts(t *testing.T) {
	dir := t.TempDir()

	older := "flatwiki-backup-20260101000000.tar.gz.enc"
	newer := "flatwiki-backup-20260201000000.tar.gz.enc"
	require.NoError(t, os.WriteFile(filepath.Join(dir, older), []byte("a"), 0o660))
	require.NoError(t, os.WriteFile(filepath.Join(dir, newer), []byte("bb"), 0o660))
	require.NoError(t, os.WriteFile(filepath.Join(dir, newer+checksumSuffix), []byte("x"), 0o660))
	// non-matching files never appear
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("n"), 0o660))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "flatwiki-backup-20260301000000.tar.gz.enc.d"), 0o770))

	list, err := ListArtifacts(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, newer, list[0].Name, "newest first")
	assert.True(t, list[0].HasChecksum)
	assert.Equal(t, int64(2), list[0].SizeBytes)
	assert.Equal(t, older, list[1].Name)
	assert.False(t, list[1].HasChecksum)

	// a missing directory lists as empty, not as an error
	empty, err := ListArtifacts(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteArtifact(t *testing.T) {
	dir := t.TempDir()
	name := newArtifactName(time.Now())
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o660))
	require.NoError(t, os.WriteFile(path+checksumSuffix, []byte("y"), 0o660))

	require.NoError(t, DeleteArtifact(dir, name))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+checksumSuffix)

	assert.ErrorIs(t, DeleteArtifact(dir, name), common.ErrNotFound)
	assert.ErrorIs(t, DeleteArtifact(dir, "../"+name), common.ErrInvalidArtifactName)
}
