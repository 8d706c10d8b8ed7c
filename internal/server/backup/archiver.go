package backup

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Archiver is the capability boundary around the external archiving tool,
// so a library-based implementation can replace the tar binary without
// touching pipeline logic.
type Archiver interface {
	// Create archives srcDir (excluding the given patterns) into outPath,
	// calling onEntry for every per-file line the archiver reports.
	Create(ctx context.Context, srcDir, outPath string, exclude []string, onEntry func(string)) error

	// Extract unpacks archivePath into destDir.
	Extract(ctx context.Context, archivePath, destDir string) error
}

// TarArchiver shells out to tar with gzip compression. Verbose per-file
// output is streamed line by line, not buffered to completion, so packing
// progress advances while tar runs.
type TarArchiver struct {
	Bin string
}

func NewTarArchiver(bin string) *TarArchiver {
	if bin == "" {
		bin = "tar"
	}
	return &TarArchiver{Bin: bin}
}

func (a *TarArchiver) Create(ctx context.Context, srcDir, outPath string, exclude []string, onEntry func(string)) error {
	args := []string{"-czvf", outPath, "-C", srcDir}
	for _, e := range exclude {
		args = append(args, "--exclude="+e)
	}
	args = append(args, ".")

	cmd := exec.CommandContext(ctx, a.Bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("tar stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tar: %w", err)
	}

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && onEntry != nil {
			onEntry(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("tar failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read tar output: %w", err)
	}
	return nil
}

func (a *TarArchiver) Extract(ctx context.Context, archivePath, destDir string) error {
	cmd := exec.CommandContext(ctx, a.Bin, "-xzf", archivePath, "-C", destDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tar extract failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
