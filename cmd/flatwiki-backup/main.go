// Command flatwiki-backup drives the backup pipeline from the command
// line: create, list, verify and restore encrypted backup artifacts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/flatwiki/flatwiki/internal/flagx"
	"github.com/flatwiki/flatwiki/internal/server"
	"github.com/flatwiki/flatwiki/internal/server/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		doRun       bool
		doList      bool
		verifyName  string
		restoreName string
	)

	args := flagx.FilterArgs(os.Args[1:], []string{"-run", "-list", "-verify", "-restore"})
	fs := flag.NewFlagSet("flatwiki-backup", flag.ExitOnError)
	fs.BoolVar(&doRun, "run", false, "create a new backup artifact")
	fs.BoolVar(&doList, "list", false, "list backup artifacts")
	fs.StringVar(&verifyName, "verify", "", "verify the named artifact against its checksum")
	fs.StringVar(&restoreName, "restore", "", "restore the named artifact over the data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.LoadConfig()

	// run and restore need the passphrase; prompt rather than fail when the
	// environment does not carry it
	if (doRun || restoreName != "") && cfg.BackupPassphrase == "" {
		pass, err := promptPassphrase()
		if err != nil {
			return err
		}
		cfg.BackupPassphrase = pass
	}

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}

	switch {
	case doRun:
		return runBackup(ctx, app)
	case doList:
		return listArtifacts(app)
	case verifyName != "":
		if err := app.Backup.Verify(verifyName); err != nil {
			return err
		}
		fmt.Printf("%s: ok\n", verifyName)
		return nil
	case restoreName != "":
		if err := app.Backup.Restore(ctx, restoreName); err != nil {
			return err
		}
		fmt.Printf("restored %s into %s\n", restoreName, cfg.DataDir)
		return nil
	default:
		fs.Usage()
		return errors.New("one of -run, -list, -verify or -restore is required")
	}
}

func promptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Backup passphrase: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}

func runBackup(ctx context.Context, app *server.App) error {
	res := app.Backup.Start(ctx)
	if !res.Started {
		return errors.New(res.Reason)
	}

	lastPercent := -1
	for {
		st := app.Backup.Status()
		if st.Percent != lastPercent {
			fmt.Printf("%3d%% %s\n", st.Percent, st.Phase)
			lastPercent = st.Percent
		}
		if st.Phase.Terminal() {
			if st.Error != "" {
				return errors.New(st.Error)
			}
			fmt.Printf("created %s (%d bytes)\n", st.ArtifactName, st.ArtifactSize)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func listArtifacts(app *server.App) error {
	list, err := app.Backup.ListArtifacts()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no backup artifacts")
		return nil
	}
	for _, a := range list {
		check := " "
		if a.HasChecksum {
			check = "✓"
		}
		fmt.Printf("%s %12d  %s  %s\n", check, a.SizeBytes, a.ModifiedAt.Format(time.RFC3339), a.Name)
	}
	return nil
}
