// Package common defines shared constants and sentinel errors used across
// the flatwiki artifact core. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")

	// Ingestion gate errors. Always user-facing and recoverable: the
	// single upload fails and its quarantine file is removed.
	ErrQuarantineEscape    = errors.New("file is outside the quarantine directory")
	ErrInvalidSlug         = errors.New("invalid page slug")
	ErrExtensionNotAllowed = errors.New("file extension is not allowed")
	ErrMimeNotAllowed      = errors.New("mime type is not allowed for this extension")
	ErrMagicMismatch       = errors.New("file content does not match its extension")
	ErrEmptyFile           = errors.New("file is empty")

	// Scan errors. Infection is fatal under every mode except "off";
	// an unavailable scanner is fatal only under "required".
	ErrFileInfected       = errors.New("file rejected by virus scanner")
	ErrScannerUnavailable = errors.New("virus scanner is not available")

	// Authorization error for attachment deletion.
	ErrForbidden = errors.New("operation not permitted")

	// Crypto errors. Decryption fails closed: no partial plaintext.
	ErrNoSecretKey   = errors.New("no secret key configured")
	ErrDecryptFailed = errors.New("decryption failed")

	// Backup pipeline errors.
	ErrAlreadyRunning      = errors.New("already running")
	ErrNoPassphrase        = errors.New("backup passphrase is not configured")
	ErrPassphraseReuse     = errors.New("backup passphrase must differ from the secret key")
	ErrInvalidArtifactName = errors.New("invalid backup file name")
	ErrInvalidArtifact     = errors.New("invalid backup artifact")
)
