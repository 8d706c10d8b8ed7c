// Package backup implements the encrypted backup pipeline: enumerate the
// data tree, archive it with an external streaming archiver, derive a key
// from the configured passphrase, encrypt the archive, and atomically
// publish the artifact with a checksum sidecar.
package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/flatwiki/flatwiki/internal/cryptox"
	"github.com/flatwiki/flatwiki/internal/filex"
	"github.com/flatwiki/flatwiki/internal/logging"
	"github.com/flatwiki/flatwiki/internal/server/config"
	"github.com/flatwiki/flatwiki/internal/server/models"
	"github.com/flatwiki/flatwiki/internal/syncx"
)

// Progress sub-ranges of the overall job percentage.
const (
	pctEnumerated = 10
	pctPacked     = 65
	pctEncrypted  = 90
	pctComposed   = 98
)

// StartResult is the reply to a start request. A second start while a job
// is running is not an error: Started is false, Reason explains why, and
// Status carries the in-flight job's snapshot.
type StartResult struct {
	Started bool
	Reason  string
	Status  models.BackupStatus
}

type Service struct {
	cfg      *config.Config
	log      logging.Logger
	archiver Archiver
	uploader Uploader
	guard    *syncx.JobGuard

	mu     sync.Mutex
	status models.BackupStatus
}

// NewService wires the backup pipeline. guard is shared process-wide so
// backups and restores exclude each other. uploader may be nil when
// offsite replication is not configured.
func NewService(cfg *config.Config, archiver Archiver, uploader Uploader, guard *syncx.JobGuard, log logging.Logger) *Service {
	return &Service{
		cfg:      cfg,
		log:      log.With("component", "backup"),
		archiver: archiver,
		uploader: uploader,
		guard:    guard,
		status:   models.BackupStatus{Phase: models.PhaseIdle},
	}
}

// Status returns a point-in-time snapshot of the current or last job.
func (s *Service) Status() models.BackupStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start launches a backup job. The single-flight guard, not the phase
// field, decides whether a job is in flight, so two concurrent calls can
// never both start. The job itself runs in the background; callers poll
// Status for progress.
func (s *Service) Start(ctx context.Context) StartResult {
	if err := s.checkPreconditions(); err != nil {
		return StartResult{Reason: err.Error(), Status: s.Status()}
	}

	release, ok := s.guard.Begin()
	if !ok {
		return StartResult{Reason: common.ErrAlreadyRunning.Error(), Status: s.Status()}
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.status = models.BackupStatus{
		JobID:     uuid.NewString(),
		Phase:     models.PhasePreparing,
		Running:   true,
		StartedAt: &now,
	}
	snapshot := s.status
	s.mu.Unlock()

	go func() {
		defer release() // safety net, release is idempotent
		// the job deliberately detaches from the request context:
		// backups run to a terminal phase, they are not cancellable
		// mid-flight
		s.run(context.WithoutCancel(ctx), release)
	}()

	return StartResult{Started: true, Status: snapshot}
}

// checkPreconditions rejects a start when the passphrase is missing or
// reuses the content-encryption secret (one secret must never serve two
// trust domains).
func (s *Service) checkPreconditions() error {
	if s.cfg.BackupPassphrase == "" {
		return common.ErrNoPassphrase
	}
	if s.cfg.SecretKey != "" && s.cfg.BackupPassphrase == s.cfg.SecretKey {
		return common.ErrPassphraseReuse
	}
	return nil
}

func (s *Service) run(ctx context.Context, release func()) {
	archiveTmp, cipherTmp, outTmp := s.tempPaths()
	removeTemps := func() {
		for _, p := range []string{archiveTmp, cipherTmp, outTmp} {
			os.Remove(p)
		}
	}
	defer removeTemps()

	artifactName, size, err := s.pipeline(ctx, archiveTmp, cipherTmp, outTmp)
	// temps are gone before the terminal phase becomes observable
	removeTemps()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	// release inside the critical section: once a caller observes a
	// terminal phase the guard is guaranteed free again
	defer release()
	s.status.FinishedAt = &now
	s.status.Running = false
	if err != nil {
		s.status.Phase = models.PhaseError
		s.status.Error = err.Error()
		s.log.Error(ctx, "backup failed", "err", err)
		return
	}
	s.status.Phase = models.PhaseDone
	s.status.Percent = 100
	s.status.ArtifactName = artifactName
	s.status.ArtifactSize = size
	s.log.Info(ctx, "backup finished", "artifact", artifactName, "size", size)
}

func (s *Service) tempPaths() (archiveTmp, cipherTmp, outTmp string) {
	jobTag := uuid.NewString()[:8]
	archiveTmp = filepath.Join(s.cfg.BackupDir, ".archive-"+jobTag+".tar.gz")
	cipherTmp = filepath.Join(s.cfg.BackupDir, ".cipher-"+jobTag+".bin")
	outTmp = filepath.Join(s.cfg.BackupDir, ".out-"+jobTag+".enc")
	return
}

func (s *Service) pipeline(ctx context.Context, archiveTmp, cipherTmp, outTmp string) (string, int64, error) {
	if err := filex.EnsureDir(s.cfg.BackupDir); err != nil {
		return "", 0, err
	}

	// enumerate the data tree, excluding the backup directory itself so
	// an artifact never swallows its predecessors
	total, err := s.countFiles()
	if err != nil {
		return "", 0, fmt.Errorf("enumerate data tree: %w", err)
	}
	s.update(func(st *models.BackupStatus) {
		st.TotalFiles = total
		st.Message = fmt.Sprintf("%d files to back up", total)
	})
	s.setPercent(pctEnumerated)

	// pack
	s.setPhase(models.PhasePacking)
	packed := 0
	err = s.archiver.Create(ctx, s.cfg.DataDir, archiveTmp, s.excludePatterns(), func(string) {
		packed++
		s.update(func(st *models.BackupStatus) { st.PackedFiles = packed })
		if total > 0 {
			// tar's verbose output also lists directories, so packed can
			// exceed the enumerated file count; cap the ratio at 1 to keep
			// packing inside its sub-range
			done := packed
			if done > total {
				done = total
			}
			s.setPercent(pctEnumerated + done*(pctPacked-pctEnumerated)/total)
		}
	})
	if err != nil {
		return "", 0, err
	}
	s.setPercent(pctPacked)

	archiveInfo, err := os.Stat(archiveTmp)
	if err != nil {
		return "", 0, fmt.Errorf("stat archive: %w", err)
	}
	archiveSize := archiveInfo.Size()
	s.update(func(st *models.BackupStatus) { st.ArchiveBytes = archiveSize })

	// derive key material
	s.setPhase(models.PhaseEncrypting)
	salt, err := cryptox.NewSalt()
	if err != nil {
		return "", 0, err
	}
	key, err := cryptox.DeriveKey(s.cfg.BackupPassphrase, salt, s.cfg.KDF)
	if err != nil {
		return "", 0, err
	}
	nonce, err := cryptox.NewNonce()
	if err != nil {
		return "", 0, err
	}

	// encrypt the archive into the cipher temp file
	tag, err := s.encryptArchive(archiveTmp, cipherTmp, key, nonce, archiveSize)
	if err != nil {
		return "", 0, err
	}
	s.setPercent(pctEncrypted)

	// compose header + ciphertext and atomically publish
	s.setPhase(models.PhaseWriting)
	createdAt := time.Now().UTC()
	artifactName := newArtifactName(createdAt)
	finalPath := filepath.Join(s.cfg.BackupDir, artifactName)

	if err := s.composeArtifact(cipherTmp, outTmp, newHeader(s.cfg.KDF, salt, nonce, tag, createdAt)); err != nil {
		return "", 0, err
	}
	if err := os.Rename(outTmp, finalPath); err != nil {
		return "", 0, fmt.Errorf("publish artifact: %w", err)
	}

	sum, err := writeChecksumSidecar(finalPath)
	if err != nil {
		return "", 0, err
	}
	s.setPercent(pctComposed)

	info, err := os.Stat(finalPath)
	if err != nil {
		return "", 0, fmt.Errorf("stat artifact: %w", err)
	}

	s.replicate(ctx, finalPath, artifactName)

	s.log.Debug(ctx, "artifact published", "name", artifactName, "sha256", sum)
	return artifactName, info.Size(), nil
}

// countFiles walks the data root counting regular files, skipping the
// backup output directory.
func (s *Service) countFiles() (int, error) {
	absBackup, err := filepath.Abs(s.cfg.BackupDir)
	if err != nil {
		return 0, err
	}

	total := 0
	err = filepath.WalkDir(s.cfg.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			abs, aerr := filepath.Abs(path)
			if aerr != nil {
				return aerr
			}
			if abs == absBackup {
				return filepath.SkipDir
			}
			return nil
		}
		total++
		return nil
	})
	return total, err
}

// excludePatterns returns tar exclude patterns for the backup directory
// when it lives inside the data root.
func (s *Service) excludePatterns() []string {
	rel, err := filepath.Rel(s.cfg.DataDir, s.cfg.BackupDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	return []string{"./" + filepath.ToSlash(rel)}
}

func (s *Service) encryptArchive(archivePath, cipherPath string, key, nonce []byte, archiveSize int64) ([]byte, error) {
	src, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(cipherPath)
	if err != nil {
		return nil, fmt.Errorf("create cipher temp: %w", err)
	}
	defer dst.Close()

	tag, err := cryptox.EncryptStream(dst, src, key, nonce, cryptox.DefaultChunkSize, func(done int64) {
		s.update(func(st *models.BackupStatus) { st.ProcessedBytes = done })
		if archiveSize > 0 {
			s.setPercent(pctPacked + int(done*int64(pctEncrypted-pctPacked)/archiveSize))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt archive: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("sync cipher temp: %w", err)
	}
	return tag, nil
}

func (s *Service) composeArtifact(cipherPath, outPath string, h *header) error {
	src, err := os.Open(cipherPath)
	if err != nil {
		return fmt.Errorf("open cipher temp: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	cipherSize := info.Size()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create artifact temp: %w", err)
	}

	// the artifact carries the encrypted payload; pin its mode to the
	// sidecar's 0o660 rather than trusting the umask
	err = out.Chmod(0o660)
	if err == nil {
		err = h.writeTo(out)
	}
	if err == nil {
		err = s.copyWithProgress(out, src, cipherSize)
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close artifact temp: %w", cerr)
	}
	return err
}

func (s *Service) copyWithProgress(dst io.Writer, src io.Reader, totalSize int64) error {
	buf := make([]byte, 256*1024)
	var done int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write artifact: %w", werr)
			}
			done += int64(n)
			if totalSize > 0 {
				s.setPercent(pctEncrypted + int(done*int64(pctComposed-pctEncrypted)/totalSize))
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read ciphertext: %w", rerr)
		}
	}
}

// replicate pushes the artifact and its sidecar offsite, best-effort. The
// local artifact stays the source of truth; a failed upload only leaves a
// note in the status message.
func (s *Service) replicate(ctx context.Context, path, name string) {
	if s.uploader == nil || !s.uploader.Enabled() {
		return
	}
	for _, p := range []string{path, path + checksumSuffix} {
		if err := s.uploader.Upload(ctx, p, filepath.Base(p)); err != nil {
			s.log.Warn(ctx, "offsite replication failed", "artifact", name, "err", err)
			s.update(func(st *models.BackupStatus) {
				st.Message = "offsite replication failed: " + err.Error()
			})
			return
		}
	}
	s.log.Info(ctx, "artifact replicated offsite", "artifact", name)
}

// -------- status helpers --------

func (s *Service) update(fn func(*models.BackupStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *Service) setPhase(p models.Phase) {
	s.update(func(st *models.BackupStatus) { st.Phase = p })
}

// setPercent keeps the percentage monotonically non-decreasing and
// clamped to [0,100] within a job.
func (s *Service) setPercent(p int) {
	s.update(func(st *models.BackupStatus) {
		if p < st.Percent {
			return
		}
		if p > 100 {
			p = 100
		}
		st.Percent = p
	})
}

// ListArtifacts enumerates the artifacts in the backup directory.
func (s *Service) ListArtifacts() ([]models.ArtifactInfo, error) {
	return ListArtifacts(s.cfg.BackupDir)
}

// ResolvePath validates name against the strict artifact pattern and
// returns its path for download.
func (s *Service) ResolvePath(name string) (string, error) {
	path, err := ResolveArtifactPath(s.cfg.BackupDir, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", common.ErrNotFound
		}
		return "", err
	}
	return filepath.Abs(path)
}

// Delete removes an artifact and its sidecar.
func (s *Service) Delete(name string) error {
	return DeleteArtifact(s.cfg.BackupDir, name)
}

// Verify recomputes an artifact's checksum against its sidecar and
// validates its header.
func (s *Service) Verify(name string) error {
	return VerifyArtifact(s.cfg.BackupDir, name)
}
