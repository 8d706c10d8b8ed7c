package backup

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/flatwiki/flatwiki/internal/cryptox"
	"github.com/flatwiki/flatwiki/internal/filex"
	"github.com/flatwiki/flatwiki/internal/server/models"
)

// artifactMagic is the first line of every backup artifact.
const artifactMagic = "FLATWIKI-BACKUP"

const (
	headerVersion   = 1
	headerAlgorithm = "aes-256-gcm"
	kdfName         = "scrypt"

	// maxChunkSize bounds the header's chunk field. The header is not
	// authenticated, and decryption sizes its read buffer from this value,
	// so it must be rejected before any allocation happens.
	maxChunkSize = 4 * cryptox.DefaultChunkSize

	checksumSuffix = ".sha256"
)

// artifactNamePattern is the sole defense against path traversal into the
// backup directory: any filename accepted for download, delete or restore
// must match it exactly after taking only the basename.
var artifactNamePattern = regexp.MustCompile(`^flatwiki-backup-\d{14}\.tar\.gz\.enc$`)

// newArtifactName builds the artifact filename for a backup started at ts.
func newArtifactName(ts time.Time) string {
	return "flatwiki-backup-" + ts.UTC().Format("20060102150405") + ".tar.gz.enc"
}

// header is the single-line JSON metadata record written after the magic
// line. All binary fields are base64.
type header struct {
	Version   int       `json:"v"`
	Algorithm string    `json:"alg"`
	KDF       headerKDF `json:"kdf"`
	Salt      string    `json:"salt"`
	IV        string    `json:"iv"`
	Tag       string    `json:"tag"`
	ChunkSize int       `json:"chunk"`
	CreatedAt time.Time `json:"createdAt"`
	Source    string    `json:"source"`
}

type headerKDF struct {
	Name string `json:"name"`
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
}

func newHeader(params cryptox.KDFParams, salt, iv, tag []byte, createdAt time.Time) *header {
	b64 := base64.StdEncoding
	return &header{
		Version:   headerVersion,
		Algorithm: headerAlgorithm,
		KDF:       headerKDF{Name: kdfName, N: params.N, R: params.R, P: params.P},
		Salt:      b64.EncodeToString(salt),
		IV:        b64.EncodeToString(iv),
		Tag:       b64.EncodeToString(tag),
		ChunkSize: cryptox.DefaultChunkSize,
		CreatedAt: createdAt.UTC(),
		Source:    "flatwiki",
	}
}

func (h *header) writeTo(w io.Writer) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode artifact header: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n%s\n", artifactMagic, raw); err != nil {
		return fmt.Errorf("write artifact header: %w", err)
	}
	return nil
}

// readHeader parses and validates the magic and metadata lines. The reader
// is left positioned at the first ciphertext byte.
func readHeader(r *bufio.Reader) (*header, error) {
	magic, err := r.ReadString('\n')
	if err != nil || strings.TrimRight(magic, "\n") != artifactMagic {
		return nil, fmt.Errorf("%w: bad magic", common.ErrInvalidArtifact)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: missing metadata", common.ErrInvalidArtifact)
	}

	h := &header{}
	if err := json.Unmarshal([]byte(line), h); err != nil {
		return nil, fmt.Errorf("%w: malformed metadata", common.ErrInvalidArtifact)
	}
	if h.Version != headerVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", common.ErrInvalidArtifact, h.Version)
	}
	if h.Algorithm != headerAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", common.ErrInvalidArtifact, h.Algorithm)
	}
	if h.KDF.Name != kdfName {
		return nil, fmt.Errorf("%w: unsupported kdf %q", common.ErrInvalidArtifact, h.KDF.Name)
	}
	if h.ChunkSize <= 0 || h.ChunkSize > maxChunkSize {
		return nil, fmt.Errorf("%w: bad chunk size %d", common.ErrInvalidArtifact, h.ChunkSize)
	}
	return h, nil
}

func (h *header) decode() (salt, iv, tag []byte, err error) {
	b64 := base64.StdEncoding
	if salt, err = b64.DecodeString(h.Salt); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad salt", common.ErrInvalidArtifact)
	}
	if iv, err = b64.DecodeString(h.IV); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad iv", common.ErrInvalidArtifact)
	}
	if tag, err = b64.DecodeString(h.Tag); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad tag", common.ErrInvalidArtifact)
	}
	return salt, iv, tag, nil
}

// ResolveArtifactPath maps an artifact filename to its path inside dir.
// Only exact-pattern basenames resolve; anything else returns
// common.ErrInvalidArtifactName without touching the filesystem.
func ResolveArtifactPath(dir, name string) (string, error) {
	base := filepath.Base(name)
	if base != name || !artifactNamePattern.MatchString(base) {
		return "", common.ErrInvalidArtifactName
	}
	return filepath.Join(dir, base), nil
}

// ListArtifacts enumerates the backup artifacts in dir, newest first.
func ListArtifacts(dir string) ([]models.ArtifactInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var result []models.ArtifactInfo
	for _, e := range entries {
		if e.IsDir() || !artifactNamePattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		_, serr := os.Stat(filepath.Join(dir, e.Name()+checksumSuffix))
		result = append(result, models.ArtifactInfo{
			Name:        e.Name(),
			SizeBytes:   info.Size(),
			ModifiedAt:  info.ModTime(),
			HasChecksum: serr == nil,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name > result[j].Name })
	return result, nil
}

// DeleteArtifact removes an artifact and its checksum sidecar.
func DeleteArtifact(dir, name string) error {
	path, err := ResolveArtifactPath(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return common.ErrNotFound
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	// the sidecar is best-effort
	os.Remove(path + checksumSuffix)
	return nil
}

// writeChecksumSidecar hashes the artifact and writes "<hex>  <name>\n"
// next to it, in the format sha256sum can verify independently.
func writeChecksumSidecar(path string) (string, error) {
	sum, err := filex.SHA256File(path)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := os.WriteFile(path+checksumSuffix, []byte(line), 0o660); err != nil {
		return "", fmt.Errorf("write checksum sidecar: %w", err)
	}
	return sum, nil
}

// readChecksumSidecar returns the hex digest recorded for the artifact.
func readChecksumSidecar(path string) (string, error) {
	raw, err := os.ReadFile(path + checksumSuffix)
	if err != nil {
		return "", fmt.Errorf("read checksum sidecar: %w", err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 1 || len(fields[0]) != 64 {
		return "", fmt.Errorf("%w: malformed checksum sidecar", common.ErrInvalidArtifact)
	}
	return fields[0], nil
}

// VerifyArtifact recomputes the artifact's SHA-256 against its sidecar and
// validates the header without decrypting the payload.
func VerifyArtifact(dir, name string) error {
	path, err := ResolveArtifactPath(dir, name)
	if err != nil {
		return err
	}

	want, err := readChecksumSidecar(path)
	if err != nil {
		return err
	}
	got, err := filex.SHA256File(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: checksum mismatch", common.ErrInvalidArtifact)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := readHeader(bufio.NewReader(f)); err != nil {
		return err
	}
	return nil
}
