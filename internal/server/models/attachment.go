// Package models defines the persisted data types of the artifact core.
package models

import (
	"path/filepath"
	"time"
)

// ScanStatus records the antivirus outcome for an ingested file.
type ScanStatus string

const (
	// ScanClean means the scanner ran and reported no findings.
	ScanClean ScanStatus = "clean"
	// ScanSkipped means no scan happened (mode off, or scanner
	// unavailable under the optional policy).
	ScanSkipped ScanStatus = "skipped"
	// ScanFailed means the scanner malfunctioned but policy allowed the
	// file through anyway.
	ScanFailed ScanStatus = "failed"
)

// AttachmentRecord is the persisted metadata for one successfully ingested
// file. StorageName is generated server-side and is the only name ever used
// to address the blob on disk; OriginalName is kept for display/download
// only, already sanitized.
type AttachmentRecord struct {
	ID                  string     `json:"id"`
	Slug                string     `json:"slug"`
	StorageName         string     `json:"storageName"`
	OriginalName        string     `json:"originalName"`
	MimeType            string     `json:"mimeType"`
	Extension           string     `json:"extension"`
	SizeBytes           int64      `json:"sizeBytes"`
	SHA256              string     `json:"sha256"`
	UploadedAt          time.Time  `json:"uploadedAt"`
	UploaderID          string     `json:"uploaderId"`
	UploaderUsername    string     `json:"uploaderUsername"`
	UploaderDisplayName string     `json:"uploaderDisplayName"`
	ScanStatus          ScanStatus `json:"scanStatus"`
	Scanner             string     `json:"scanner,omitempty"`
}

// Normalize coerces a record loaded from disk into a trustworthy shape.
// It returns false when the record is unusable and must be dropped. This
// is the "parse, don't trust" boundary for the JSON metadata store.
func (r *AttachmentRecord) Normalize() bool {
	if r.ID == "" || r.Slug == "" || r.StorageName == "" {
		return false
	}
	// a storage name carrying path components could escape the
	// attachments directory
	if filepath.Base(r.StorageName) != r.StorageName {
		return false
	}

	switch r.ScanStatus {
	case ScanClean, ScanSkipped, ScanFailed:
	default:
		r.ScanStatus = ScanSkipped
	}

	if r.SizeBytes < 0 {
		r.SizeBytes = 0
	}
	if r.OriginalName == "" {
		r.OriginalName = r.StorageName
	}
	return true
}
