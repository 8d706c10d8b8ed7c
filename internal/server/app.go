// Package server wires the artifact core together: configuration, logging,
// the secret envelope codec and the attachment and backup pipelines.
package server

import (
	"context"
	"fmt"

	"github.com/flatwiki/flatwiki/internal/cryptox"
	"github.com/flatwiki/flatwiki/internal/filex"
	"github.com/flatwiki/flatwiki/internal/logging"
	"github.com/flatwiki/flatwiki/internal/server/attachments"
	"github.com/flatwiki/flatwiki/internal/server/backup"
	"github.com/flatwiki/flatwiki/internal/server/config"
	"github.com/flatwiki/flatwiki/internal/server/scanner"
	"github.com/flatwiki/flatwiki/internal/syncx"
)

type App struct {
	Config      *config.Config
	Logger      logging.Logger
	Secrets     *cryptox.Codec
	Attachments *attachments.Service
	Backup      *backup.Service
}

// NewApp builds the application graph from a loaded configuration. It
// validates the KDF parameters and creates the data directories up front
// so misconfiguration fails at startup, not mid-pipeline.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.KDF.Validate(); err != nil {
		return nil, fmt.Errorf("kdf config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.QuarantineDir, cfg.AttachmentsDir, cfg.BackupDir} {
		if err := filex.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	store := attachments.NewStore(cfg.AttachmentsDir+".json", syncx.NewPathLocker())
	clam := scanner.NewClamAV(cfg.ScannerBin, cfg.ScanTimeout)
	attachSvc := attachments.NewService(cfg.QuarantineDir, cfg.AttachmentsDir,
		scanner.ParseMode(cfg.ScanMode), clam, store, logger)

	uploader, err := backup.NewS3Uploader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("offsite target: %w", err)
	}
	backupSvc := backup.NewService(cfg, backup.NewTarArchiver(cfg.TarBin), uploader, syncx.NewJobGuard(), logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Secrets:     cryptox.NewCodec(cfg.SecretKey, cfg.LegacySecretKey),
		Attachments: attachSvc,
		Backup:      backupSvc,
	}, nil
}
