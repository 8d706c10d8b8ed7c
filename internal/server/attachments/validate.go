package attachments

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flatwiki/flatwiki/internal/common"
)

const (
	maxFileNameLen = 120
	// fallbackName is used when sanitizing strips a name down to nothing.
	fallbackName = "file"

	// magicWindow is how much of the file the content checks look at.
	magicWindow = 8192
)

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// allowedTypes maps a lower-cased extension to the MIME types a client may
// declare for it. Unknown extensions are rejected outright.
var allowedTypes = map[string][]string{
	"pdf":  {"application/pdf"},
	"png":  {"image/png"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"gif":  {"image/gif"},
	"webp": {"image/webp"},
	"txt":  {"text/plain"},
	"md":   {"text/markdown", "text/plain"},
	"csv":  {"text/csv", "text/plain", "application/vnd.ms-excel"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/octet-stream"},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/octet-stream"},
	"pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/octet-stream"},
	"zip":  {"application/zip", "application/x-zip-compressed", "application/octet-stream"},
}

var disallowedChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
var repeatedUnderscores = regexp.MustCompile(`_{2,}`)

// sanitizeFileName strips directory components and hostile characters from
// a user-supplied filename so it is safe to display, store as metadata and
// offer as a download name. It never produces an empty string.
func sanitizeFileName(name string) string {
	// strip directory components, windows-style included
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = disallowedChars.ReplaceAllString(name, "_")
	name = repeatedUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")

	if len(name) > maxFileNameLen {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxFileNameLen-len(ext)] + ext
	}

	if name == "" {
		return fallbackName
	}
	return name
}

// fileExtension returns the lower-cased extension without the dot.
func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// checkType enforces the extension/MIME gate: the extension must be known
// and the declared MIME type must be in its allowed set.
func checkType(ext, mimeType string) error {
	allowed, ok := allowedTypes[ext]
	if !ok {
		return fmt.Errorf("%w: .%s", common.ErrExtensionNotAllowed, ext)
	}

	declared := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	for _, m := range allowed {
		if declared == m {
			return nil
		}
	}
	return fmt.Errorf("%w: %s for .%s", common.ErrMimeNotAllowed, mimeType, ext)
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
	pngMagic = []byte("\x89PNG\r\n\x1a\n")
	jpgMagic = []byte("\xff\xd8\xff")
	gifMagic = []byte("GIF8")
)

// checkMagic sniffs the file's leading bytes and verifies they match what
// the extension claims. Text formats must not carry NUL bytes in their
// first content window. Extensions without a known signature pass.
func checkMagic(ext, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for sniffing: %w", err)
	}
	defer f.Close()

	window := make([]byte, magicWindow)
	n, err := f.Read(window)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read for sniffing: %w", err)
	}
	window = window[:n]

	match := func(magic []byte) error {
		if !bytes.HasPrefix(window, magic) {
			return fmt.Errorf("%w: .%s", common.ErrMagicMismatch, ext)
		}
		return nil
	}

	switch ext {
	case "pdf":
		return match(pdfMagic)
	case "docx", "xlsx", "pptx", "zip":
		return match(zipMagic)
	case "png":
		return match(pngMagic)
	case "jpg", "jpeg":
		return match(jpgMagic)
	case "gif":
		return match(gifMagic)
	case "txt", "md", "csv":
		if bytes.IndexByte(window, 0) >= 0 {
			return fmt.Errorf("%w: binary content in .%s", common.ErrMagicMismatch, ext)
		}
		return nil
	default:
		return nil
	}
}

func validateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: %q", common.ErrInvalidSlug, slug)
	}
	return nil
}
