package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/flatwiki/flatwiki/internal/flagx"
	"github.com/flatwiki/flatwiki/internal/timex"
)

// JsonConfig is the DTO used only for reading JSON configuration files.
// Interval fields use timex.Duration so both "90s" and integer nanoseconds
// parse. After unmarshalling, values are copied into the runtime Config.
type JsonConfig struct {
	DataDir        string `json:"data_dir"`
	QuarantineDir  string `json:"quarantine_dir"`
	AttachmentsDir string `json:"attachments_dir"`
	BackupDir      string `json:"backup_dir"`

	SecretKey        string `json:"secret_key"`
	LegacySecretKey  string `json:"legacy_secret_key"`
	BackupPassphrase string `json:"backup_passphrase"`

	ScanMode    string         `json:"scan_mode"`
	ScannerBin  string         `json:"scanner_bin"`
	ScanTimeout timex.Duration `json:"scan_timeout"`
	TarBin      string         `json:"tar_bin"`

	KDFLogN int `json:"kdf_log_n"`
	KDFR    int `json:"kdf_r"`
	KDFP    int `json:"kdf_p"`

	S3Bucket    string `json:"s3_bucket"`
	S3Region    string `json:"s3_region"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// parseJson overlays values from the JSON file named by the -c/-config
// flags onto config. Without the flag nothing is loaded. An unreadable or
// invalid file panics: a half-applied config is worse than no start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyString(&config.DataDir, c.DataDir)
	applyString(&config.QuarantineDir, c.QuarantineDir)
	applyString(&config.AttachmentsDir, c.AttachmentsDir)
	applyString(&config.BackupDir, c.BackupDir)
	applyString(&config.SecretKey, c.SecretKey)
	applyString(&config.LegacySecretKey, c.LegacySecretKey)
	applyString(&config.BackupPassphrase, c.BackupPassphrase)
	applyString(&config.ScanMode, c.ScanMode)
	applyString(&config.ScannerBin, c.ScannerBin)
	applyString(&config.TarBin, c.TarBin)
	applyString(&config.S3Bucket, c.S3Bucket)
	applyString(&config.S3Region, c.S3Region)
	applyString(&config.S3Endpoint, c.S3Endpoint)
	applyString(&config.S3AccessKey, c.S3AccessKey)
	applyString(&config.S3SecretKey, c.S3SecretKey)
	applyString(&config.LogLevel, c.LogLevel)
	applyString(&config.LogFormat, c.LogFormat)

	if c.ScanTimeout.Duration > 0 {
		config.ScanTimeout = time.Duration(c.ScanTimeout.Duration)
	}
	if c.KDFLogN > 0 {
		config.KDF.N = 1 << c.KDFLogN
	}
	if c.KDFR > 0 {
		config.KDF.R = c.KDFR
	}
	if c.KDFP > 0 {
		config.KDF.P = c.KDFP
	}
}

func applyString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
