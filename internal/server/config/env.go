package config

import (
	"os"
	"time"
)

// parseEnv overlays FLATWIKI_* environment variables onto config. Secrets
// and the backup passphrase normally arrive this way; they have no default
// and no place in a config file checked into version control.
func parseEnv(config *Config) {
	envString(&config.DataDir, "FLATWIKI_DATA_DIR")
	envString(&config.QuarantineDir, "FLATWIKI_QUARANTINE_DIR")
	envString(&config.AttachmentsDir, "FLATWIKI_ATTACHMENTS_DIR")
	envString(&config.BackupDir, "FLATWIKI_BACKUP_DIR")

	envString(&config.SecretKey, "FLATWIKI_SECRET_KEY")
	envString(&config.LegacySecretKey, "FLATWIKI_LEGACY_SECRET_KEY")
	envString(&config.BackupPassphrase, "FLATWIKI_BACKUP_PASSPHRASE")

	envString(&config.ScanMode, "FLATWIKI_SCAN_MODE")
	envString(&config.ScannerBin, "FLATWIKI_SCANNER_BIN")
	envString(&config.TarBin, "FLATWIKI_TAR_BIN")

	if v, ok := os.LookupEnv("FLATWIKI_SCAN_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.ScanTimeout = d
		}
	}

	envString(&config.S3Bucket, "FLATWIKI_S3_BUCKET")
	envString(&config.S3Region, "FLATWIKI_S3_REGION")
	envString(&config.S3Endpoint, "FLATWIKI_S3_ENDPOINT")
	envString(&config.S3AccessKey, "FLATWIKI_S3_ACCESS_KEY")
	envString(&config.S3SecretKey, "FLATWIKI_S3_SECRET_KEY")

	envString(&config.LogLevel, "FLATWIKI_LOG_LEVEL")
	envString(&config.LogFormat, "FLATWIKI_LOG_FORMAT")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}
