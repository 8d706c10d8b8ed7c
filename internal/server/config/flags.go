package config

import (
	"flag"
	"os"

	"github.com/flatwiki/flatwiki/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   data directory
//	-q string   quarantine directory
//	-a string   attachments directory
//	-b string   backup directory
//	-m string   scan mode ("off", "optional", "required")
//	-s string   scanner binary
//	-t string   tar binary
//
// Secrets are not accepted as flags: process arguments are world-readable
// on most systems, so keys and passphrases only come from the environment
// or the config file.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-q", "-a", "-b", "-m", "-s", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DataDir, "d", config.DataDir, "data directory")
	fs.StringVar(&config.QuarantineDir, "q", config.QuarantineDir, "quarantine directory")
	fs.StringVar(&config.AttachmentsDir, "a", config.AttachmentsDir, "attachments directory")
	fs.StringVar(&config.BackupDir, "b", config.BackupDir, "backup directory")
	fs.StringVar(&config.ScanMode, "m", config.ScanMode, "antivirus scan mode")
	fs.StringVar(&config.ScannerBin, "s", config.ScannerBin, "antivirus scanner binary")
	fs.StringVar(&config.TarBin, "t", config.TarBin, "tar binary")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
