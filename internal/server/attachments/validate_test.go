package attachments

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`..\..\windows\system32\cmd.exe`, "cmd.exe"},
		{"weird name (final)?.pdf", "weird_name_final_.pdf"},
		{"___many___underscores___.txt", "many_underscores_.txt"},
		{".hidden", "hidden"},
		{"...", "file"},
		{"", "file"},
		{"résumé.pdf", "r_sum_.pdf"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFileName(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeFileNameCapsLength(t *testing.T) {
	long := strings.Repeat("a", 500) + ".pdf"
	got := sanitizeFileName(long)
	assert.LessOrEqual(t, len(got), maxFileNameLen)
	assert.True(t, strings.HasSuffix(got, ".pdf"), "extension survives truncation")
}

func TestCheckType(t *testing.T) {
	assert.NoError(t, checkType("pdf", "application/pdf"))
	assert.NoError(t, checkType("md", "text/plain"))
	assert.NoError(t, checkType("pdf", "application/pdf; charset=binary"))

	assert.ErrorIs(t, checkType("exe", "application/octet-stream"), common.ErrExtensionNotAllowed)
	assert.ErrorIs(t, checkType("sh", "text/plain"), common.ErrExtensionNotAllowed)
	assert.ErrorIs(t, checkType("pdf", "text/html"), common.ErrMimeNotAllowed)
	assert.ErrorIs(t, checkType("png", "image/jpeg"), common.ErrMimeNotAllowed)
}

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestCheckMagic(t *testing.T) {
	tests := []struct {
		name    string
		ext     string
		content []byte
		wantErr bool
	}{
		{name: "valid pdf", ext: "pdf", content: []byte("%PDF-1.7 rest of file")},
		{name: "pdf without signature", ext: "pdf", content: []byte("<html>not a pdf</html>"), wantErr: true},
		{name: "docx with zip header", ext: "docx", content: []byte("PK\x03\x04rest")},
		{name: "docx without zip header", ext: "docx", content: []byte("garbage"), wantErr: true},
		{name: "png", ext: "png", content: []byte("\x89PNG\r\n\x1a\nrest")},
		{name: "png mismatch", ext: "png", content: []byte("BMP data"), wantErr: true},
		{name: "text file", ext: "txt", content: []byte("plain text\nwith lines\n")},
		{name: "text with NUL byte", ext: "txt", content: []byte("plain\x00binary"), wantErr: true},
		{name: "markdown with NUL byte", ext: "md", content: []byte{'#', ' ', 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "f", tt.content)
			err := checkMagic(tt.ext, path)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrMagicMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSlug(t *testing.T) {
	assert.NoError(t, validateSlug("budget"))
	assert.NoError(t, validateSlug("q3-report_2026"))

	assert.ErrorIs(t, validateSlug(""), common.ErrInvalidSlug)
	assert.ErrorIs(t, validateSlug("../pages"), common.ErrInvalidSlug)
	assert.ErrorIs(t, validateSlug("-leading"), common.ErrInvalidSlug)
	assert.ErrorIs(t, validateSlug("has space"), common.ErrInvalidSlug)
}
