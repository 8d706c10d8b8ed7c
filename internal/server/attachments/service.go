// Package attachments implements the trusted ingestion pipeline for
// user-uploaded files: quarantine, validation, antivirus scanning, hashing
// and atomic promotion into the attachments directory.
package attachments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/flatwiki/flatwiki/internal/filex"
	"github.com/flatwiki/flatwiki/internal/logging"
	"github.com/flatwiki/flatwiki/internal/server/models"
	"github.com/flatwiki/flatwiki/internal/server/scanner"
)

// Identity is the authenticated actor handed in by the upload handler.
type Identity struct {
	ID          string
	Username    string
	DisplayName string
	Admin       bool
}

type Service struct {
	quarantineDir  string
	attachmentsDir string
	scanMode       scanner.Mode
	scanner        scanner.Scanner
	store          *Store
	log            logging.Logger
}

func NewService(quarantineDir, attachmentsDir string, mode scanner.Mode, sc scanner.Scanner, store *Store, log logging.Logger) *Service {
	return &Service{
		quarantineDir:  quarantineDir,
		attachmentsDir: attachmentsDir,
		scanMode:       mode,
		scanner:        sc,
		store:          store,
		log:            log.With("component", "attachments"),
	}
}

// CreateQuarantinePath reserves a random, collision-resistant path inside
// the quarantine directory for an incoming upload and returns it together
// with the sanitized original name. The HTTP layer writes the raw bytes
// there before calling Finalize.
func (s *Service) CreateQuarantinePath(originalName string) (path, safeName string, err error) {
	if err := filex.EnsureDir(s.quarantineDir); err != nil {
		return "", "", err
	}
	return filepath.Join(s.quarantineDir, uuid.NewString()+".upload"), sanitizeFileName(originalName), nil
}

// Finalize drives a quarantined upload through every ingestion gate and,
// on success, promotes it into the attachments directory and persists its
// metadata. Any gate failure deletes the quarantine file and returns an
// error; no partial record is ever persisted.
func (s *Service) Finalize(ctx context.Context, slug, quarantinePath, originalName, mimeType string, uploader Identity) (rec *models.AttachmentRecord, err error) {
	// gate 1: the path must lie strictly inside the quarantine directory.
	// Cleanup only arms after this gate, so a rejected path can never
	// cause a delete outside the quarantine boundary.
	if err := s.checkQuarantined(quarantinePath); err != nil {
		return nil, err
	}

	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(quarantinePath)
		}
	}()
	if err := validateSlug(slug); err != nil {
		return nil, err
	}

	// gate 2: sanitize the user-supplied name
	safeName := sanitizeFileName(originalName)

	// gates 3+4: extension and declared MIME type
	ext := fileExtension(safeName)
	if err := checkType(ext, mimeType); err != nil {
		return nil, err
	}

	// gate 5: magic bytes
	if err := checkMagic(ext, quarantinePath); err != nil {
		return nil, err
	}

	// gate 6: no empty files
	info, err := os.Stat(quarantinePath)
	if err != nil {
		return nil, fmt.Errorf("stat quarantine file: %w", err)
	}
	if info.Size() == 0 {
		return nil, common.ErrEmptyFile
	}

	// gate 7: antivirus, policy-driven
	verdict, err := scanner.Check(ctx, s.scanMode, s.scanner, quarantinePath)
	if err != nil {
		s.log.Warn(ctx, "upload rejected by scan policy", "slug", slug, "name", safeName, "err", err)
		return nil, err
	}

	// gate 8: content hash, streamed
	sum, err := filex.SHA256File(quarantinePath)
	if err != nil {
		return nil, err
	}

	// gate 9: promote under a server-generated storage name
	if err := filex.EnsureDir(s.attachmentsDir); err != nil {
		return nil, err
	}
	storageName := newStorageName(ext)
	finalPath := filepath.Join(s.attachmentsDir, storageName)
	if err := os.Rename(quarantinePath, finalPath); err != nil {
		return nil, fmt.Errorf("promote attachment: %w", err)
	}
	cleanup = false // the quarantine file no longer exists under its old name

	record := models.AttachmentRecord{
		ID:                  uuid.NewString(),
		Slug:                slug,
		StorageName:         storageName,
		OriginalName:        safeName,
		MimeType:            mimeType,
		Extension:           ext,
		SizeBytes:           info.Size(),
		SHA256:              sum,
		UploadedAt:          time.Now().UTC(),
		UploaderID:          uploader.ID,
		UploaderUsername:    uploader.Username,
		UploaderDisplayName: uploader.DisplayName,
		ScanStatus:          verdict.Status,
		Scanner:             verdict.Scanner,
	}

	// gate 10: persist metadata under the store lock
	err = s.store.Update(func(doc *document) error {
		doc.Attachments = append(doc.Attachments, record)
		return nil
	})
	if err != nil {
		// the blob was already promoted; take it back out so no
		// unreferenced file lingers
		os.Remove(finalPath)
		return nil, err
	}

	s.log.Info(ctx, "attachment ingested",
		"slug", slug, "name", safeName, "storage", storageName,
		"size", info.Size(), "scan", verdict.Status)

	return &record, nil
}

// checkQuarantined resolves the candidate path and verifies it addresses a
// file directly inside the quarantine directory. The basename is rejoined
// onto the quarantine root and compared against the cleaned input, which
// rejects both traversal tricks and paths from foreign directories.
func (s *Service) checkQuarantined(path string) error {
	absQuarantine, err := filepath.Abs(s.quarantineDir)
	if err != nil {
		return err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if filepath.Join(absQuarantine, filepath.Base(absPath)) != absPath {
		return common.ErrQuarantineEscape
	}
	return nil
}

// newStorageName builds a collision-resistant server-side blob name from a
// high-resolution timestamp and a random component.
func newStorageName(ext string) string {
	name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
	if ext != "" {
		name += "." + ext
	}
	return name
}

// ListBySlug returns the attachment records of one page.
func (s *Service) ListBySlug(slug string) ([]models.AttachmentRecord, error) {
	return s.store.ListBySlug(slug)
}

// GetByID returns one attachment record.
func (s *Service) GetByID(id string) (*models.AttachmentRecord, error) {
	return s.store.GetByID(id)
}

// ResolvePath returns the absolute on-disk path of an attachment blob for
// streaming it back to a response. Only the server-generated storage name
// is ever used to address the blob.
func (s *Service) ResolvePath(id string) (string, error) {
	rec, err := s.store.GetByID(id)
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(s.attachmentsDir, rec.StorageName))
}

// DownloadName returns the sanitized filename to offer for a download.
func (s *Service) DownloadName(rec *models.AttachmentRecord) string {
	return sanitizeFileName(rec.OriginalName)
}

// DeleteByID removes an attachment. Only the uploader or an administrator
// may delete; metadata goes first, then the blob is removed best-effort
// (a failed blob delete is logged, not rolled back).
func (s *Service) DeleteByID(ctx context.Context, id string, actor Identity) error {
	var storageName string

	err := s.store.Update(func(doc *document) error {
		for i := range doc.Attachments {
			if doc.Attachments[i].ID != id {
				continue
			}
			if !actor.Admin && doc.Attachments[i].UploaderID != actor.ID {
				return common.ErrForbidden
			}
			storageName = doc.Attachments[i].StorageName
			doc.Attachments = append(doc.Attachments[:i], doc.Attachments[i+1:]...)
			return nil
		}
		return common.ErrNotFound
	})
	if err != nil {
		return err
	}

	s.removeBlob(ctx, storageName)
	return nil
}

// DeleteForPage cascades deletion of every attachment belonging to a page,
// typically when the owning page is deleted.
func (s *Service) DeleteForPage(ctx context.Context, slug string) error {
	var storageNames []string

	err := s.store.Update(func(doc *document) error {
		kept := doc.Attachments[:0]
		for _, a := range doc.Attachments {
			if a.Slug == slug {
				storageNames = append(storageNames, a.StorageName)
				continue
			}
			kept = append(kept, a)
		}
		doc.Attachments = kept
		return nil
	})
	if err != nil {
		return err
	}

	for _, name := range storageNames {
		s.removeBlob(ctx, name)
	}
	return nil
}

func (s *Service) removeBlob(ctx context.Context, storageName string) {
	if storageName == "" {
		return
	}
	path := filepath.Join(s.attachmentsDir, storageName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn(ctx, "attachment blob not removed", "storage", storageName, "err", err)
	}
}
