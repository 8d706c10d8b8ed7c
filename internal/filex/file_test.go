package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// second call is a no-op
	require.NoError(t, EnsureDir(dir))
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	require.NoError(t, AtomicWrite(path, []byte(`{"attachments":[]}`), 0o660))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"attachments":[]}`, string(got))

	// overwrite replaces the old content entirely
	require.NoError(t, AtomicWrite(path, []byte("v2"), 0o660))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSHA256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	sum, err := SHA256File(path)
	require.NoError(t, err)
	// well-known SHA-256 of "abc"
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestSHA256FileMissing(t *testing.T) {
	_, err := SHA256File(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
