package backup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/flatwiki/flatwiki/internal/cryptox"
	"github.com/flatwiki/flatwiki/internal/server/models"
)

// Restore decrypts the named artifact with the configured passphrase and
// unpacks it over the data directory. It shares the single-flight guard
// with backups, so a restore can never run alongside a backup or another
// restore. Unlike Start, Restore runs synchronously: the caller knows the
// outcome when it returns.
func (s *Service) Restore(ctx context.Context, name string) error {
	if s.cfg.BackupPassphrase == "" {
		return common.ErrNoPassphrase
	}
	path, err := ResolveArtifactPath(s.cfg.BackupDir, name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return common.ErrNotFound
		}
		return err
	}

	release, ok := s.guard.Begin()
	if !ok {
		return common.ErrAlreadyRunning
	}
	defer release()

	now := time.Now().UTC()
	s.mu.Lock()
	s.status = models.BackupStatus{
		JobID:     uuid.NewString(),
		Phase:     models.PhasePreparing,
		Running:   true,
		Message:   "restoring " + name,
		StartedAt: &now,
	}
	s.mu.Unlock()

	err = s.restore(ctx, path)

	finished := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.FinishedAt = &finished
	s.status.Running = false
	if err != nil {
		s.status.Phase = models.PhaseError
		s.status.Error = err.Error()
		s.log.Error(ctx, "restore failed", "artifact", name, "err", err)
		return err
	}
	s.status.Phase = models.PhaseDone
	s.status.Percent = 100
	s.log.Info(ctx, "restore finished", "artifact", name)
	return nil
}

func (s *Service) restore(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		return err
	}
	salt, iv, tag, err := h.decode()
	if err != nil {
		return err
	}

	// the header's recorded parameters win over the current configuration,
	// so artifacts survive KDF retuning
	params := cryptox.KDFParams{N: h.KDF.N, R: h.KDF.R, P: h.KDF.P}
	key, err := cryptox.DeriveKey(s.cfg.BackupPassphrase, salt, params)
	if err != nil {
		return err
	}

	archiveTmp := filepath.Join(s.cfg.BackupDir, ".restore-"+uuid.NewString()[:8]+".tar.gz")
	defer os.Remove(archiveTmp)

	out, err := os.Create(archiveTmp)
	if err != nil {
		return fmt.Errorf("create restore temp: %w", err)
	}
	// the temp holds decrypted data; owner-only until it is consumed
	if err := out.Chmod(0o600); err != nil {
		out.Close()
		return fmt.Errorf("restrict restore temp: %w", err)
	}

	s.setPhase(models.PhaseEncrypting)
	err = cryptox.DecryptStream(out, r, key, iv, h.ChunkSize, tag, func(done int64) {
		s.update(func(st *models.BackupStatus) { st.ProcessedBytes = done })
	})
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close restore temp: %w", cerr)
	}
	if err != nil {
		return err
	}
	s.setPercent(pctEncrypted)

	s.setPhase(models.PhaseWriting)
	if err := s.archiver.Extract(ctx, archiveTmp, s.cfg.DataDir); err != nil {
		return err
	}
	s.setPercent(pctComposed)
	return nil
}
