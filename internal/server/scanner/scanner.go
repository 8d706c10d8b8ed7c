// Package scanner integrates an external antivirus engine into the
// attachment ingestion pipeline and applies the configured scan policy.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/flatwiki/flatwiki/internal/common"
	"github.com/flatwiki/flatwiki/internal/server/models"
)

// Mode is the scan policy.
type Mode string

const (
	// ModeOff never scans; every file is treated as clean/skipped.
	ModeOff Mode = "off"
	// ModeOptional scans when a scanner is available and tolerates
	// scanner malfunctions; only a positive finding is fatal.
	ModeOptional Mode = "optional"
	// ModeRequired demands a working scanner and a clean verdict.
	ModeRequired Mode = "required"
)

// ParseMode normalizes a configured mode string, defaulting to optional.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeOff, ModeOptional, ModeRequired:
		return Mode(s)
	default:
		return ModeOptional
	}
}

// Verdict is what a policy check decides about a file.
type Verdict struct {
	Status  models.ScanStatus
	Scanner string
}

// Scanner is the capability boundary around an external antivirus engine,
// so alternate backends can be substituted without touching pipeline logic.
// Scan returns the engine's exit code; by convention 0 means clean and 1
// means infected. A spawn failure is returned as an error.
type Scanner interface {
	Name() string
	Available() bool
	Scan(ctx context.Context, path string) (int, error)
}

// seams for testing process interaction
var (
	lookPath = exec.LookPath
	runScan  = func(ctx context.Context, bin string, args ...string) (int, error) {
		cmd := exec.CommandContext(ctx, bin, args...)
		err := cmd.Run()
		if err == nil {
			return 0, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
)

// ClamAV invokes clamscan (or a compatible binary) on a single file.
type ClamAV struct {
	Bin     string
	Timeout time.Duration
}

func NewClamAV(bin string, timeout time.Duration) *ClamAV {
	if bin == "" {
		bin = "clamscan"
	}
	return &ClamAV{Bin: bin, Timeout: timeout}
}

func (c *ClamAV) Name() string { return c.Bin }

func (c *ClamAV) Available() bool {
	_, err := lookPath(c.Bin)
	return err == nil
}

func (c *ClamAV) Scan(ctx context.Context, path string) (int, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return runScan(ctx, c.Bin, "--no-summary", "--", path)
}

// Check runs the scan policy for one file and maps the outcome onto the
// policy matrix:
//
//	off:       always skipped, never scanned.
//	optional:  a missing scanner records skipped; a scanner that ran and
//	           broke (spawn error, exit code other than 0/1) records
//	           failed; exit 1 is fatal.
//	required:  anything but a successful exit 0 is fatal.
//
// A positive finding (exit 1) is fatal under every mode that scans.
func Check(ctx context.Context, mode Mode, s Scanner, path string) (Verdict, error) {
	if mode == ModeOff {
		return Verdict{Status: models.ScanSkipped}, nil
	}

	if !s.Available() {
		if mode == ModeRequired {
			return Verdict{}, common.ErrScannerUnavailable
		}
		return Verdict{Status: models.ScanSkipped}, nil
	}

	code, err := s.Scan(ctx, path)
	switch {
	case err == nil && code == 0:
		return Verdict{Status: models.ScanClean, Scanner: s.Name()}, nil
	case err == nil && code == 1:
		return Verdict{Scanner: s.Name()}, common.ErrFileInfected
	case mode == ModeRequired:
		if err != nil {
			return Verdict{}, fmt.Errorf("scanner failed: %w", err)
		}
		return Verdict{}, fmt.Errorf("%w: scanner exited with code %d", common.ErrScannerUnavailable, code)
	default:
		// optional mode still accepts the file, but a scanner that ran
		// and broke records failed, distinct from "no scanner at all"
		return Verdict{Status: models.ScanFailed, Scanner: s.Name()}, nil
	}
}
