package attachments

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/flatwiki/flatwiki/internal/filex"
	"github.com/flatwiki/flatwiki/internal/server/models"
	"github.com/flatwiki/flatwiki/internal/syncx"
)

// Store persists attachment metadata as a single JSON document
// {"attachments": [...]}. Every access runs under the per-path lock so
// read-modify-write cycles are serializable, and every write goes through
// an atomic temp-file rename.
type Store struct {
	path   string
	locker *syncx.PathLocker
}

type document struct {
	Attachments []models.AttachmentRecord `json:"attachments"`
}

func NewStore(path string, locker *syncx.PathLocker) *Store {
	return &Store{path: path, locker: locker}
}

// load reads and normalizes the document. A missing file is an empty store;
// records that fail normalization are dropped rather than trusted.
func (s *Store) load() (*document, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attachment store: %w", err)
	}

	doc := &document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("parse attachment store: %w", err)
	}

	kept := doc.Attachments[:0]
	for i := range doc.Attachments {
		if doc.Attachments[i].Normalize() {
			kept = append(kept, doc.Attachments[i])
		}
	}
	doc.Attachments = kept
	return doc, nil
}

func (s *Store) save(doc *document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode attachment store: %w", err)
	}
	return filex.AtomicWrite(s.path, raw, 0o660)
}

// Update runs fn against the loaded document under the store lock and
// persists the result when fn succeeds.
func (s *Store) Update(fn func(doc *document) error) error {
	return s.locker.WithLock(s.path, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return s.save(doc)
	})
}

// view runs fn against a loaded document under the store lock without
// writing anything back.
func (s *Store) view(fn func(doc *document) error) error {
	return s.locker.WithLock(s.path, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		return fn(doc)
	})
}

// ListBySlug returns the attachments of one page, newest first not
// guaranteed: records keep their insertion order.
func (s *Store) ListBySlug(slug string) ([]models.AttachmentRecord, error) {
	var result []models.AttachmentRecord
	err := s.view(func(doc *document) error {
		for _, a := range doc.Attachments {
			if a.Slug == slug {
				result = append(result, a)
			}
		}
		return nil
	})
	return result, err
}

// GetByID returns one attachment record.
func (s *Store) GetByID(id string) (*models.AttachmentRecord, error) {
	var found *models.AttachmentRecord
	err := s.view(func(doc *document) error {
		for i := range doc.Attachments {
			if doc.Attachments[i].ID == id {
				a := doc.Attachments[i]
				found = &a
				return nil
			}
		}
		return common.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
