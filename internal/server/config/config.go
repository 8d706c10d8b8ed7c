// Package config handles configuration for the artifact core, including
// defaults, JSON overlay, environment variables and command-line flags.
package config

import (
	"time"

	"github.com/flatwiki/flatwiki/internal/cryptox"
)

// Config holds runtime settings for the flatwiki artifact core.
//
// Fields:
//   - DataDir: root of the wiki data tree; backups archive everything below it.
//   - QuarantineDir / AttachmentsDir / BackupDir: directories owned
//     exclusively by the pipelines. No other component writes into them.
//   - SecretKey: active key for the secret envelope. LegacySecretKey is the
//     previously active key, kept only so old envelopes stay readable.
//   - BackupPassphrase: passphrase for backup encryption. Must differ from
//     SecretKey so one secret never serves two trust domains.
//   - ScanMode: antivirus policy, one of "off", "optional", "required".
//   - ScannerBin / TarBin: external binaries resolved on the search path.
//   - ScanTimeout: upper bound for a single scanner invocation.
//   - KDF: scrypt cost parameters recorded in each artifact header.
//   - S3Bucket / S3Region / S3Endpoint / S3AccessKey / S3SecretKey: optional
//     offsite replication target; empty bucket disables replication.
type Config struct {
	DataDir        string
	QuarantineDir  string
	AttachmentsDir string
	BackupDir      string

	SecretKey        string
	LegacySecretKey  string
	BackupPassphrase string

	ScanMode    string
	ScannerBin  string
	ScanTimeout time.Duration
	TarBin      string

	KDF cryptox.KDFParams

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates Config with development defaults. Secrets are
// deliberately left empty and must come from the environment.
func (c *Config) LoadDefaults() {
	c.DataDir = "./data"
	c.QuarantineDir = "./data/.quarantine"
	c.AttachmentsDir = "./data/attachments"
	c.BackupDir = "./data/backups"
	c.ScanMode = "optional"
	c.ScannerBin = "clamscan"
	c.ScanTimeout = 2 * time.Minute
	c.TarBin = "tar"
	c.KDF = cryptox.DefaultKDFParams
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
	c.LogFormat = "console"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
