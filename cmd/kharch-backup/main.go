// Command kharch-backup writes a JSON backup of the ledger or restores one.
//
//	kharch-backup -out backup.json
//	kharch-backup -restore backup.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"kharch/internal/cli"
	"kharch/internal/export"
	klog "kharch/internal/log"
)

func main() {
	out := flag.String("out", "", "write a backup to this file (- for stdout)")
	restore := flag.String("restore", "", "replace the ledger with this backup file")
	flag.Parse()

	if (*out == "") == (*restore == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -out or -restore is required")
		flag.Usage()
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(klog.ComponentBackup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rt, err := cli.NewRuntime(ctx, cfg, logger, nil, nil)
	if err != nil {
		logger.Error("Failed to initialize ledger", klog.FieldError, err)
		os.Exit(1)
	}

	if *out != "" {
		err = writeBackup(ctx, rt, *out)
	} else {
		err = restoreBackup(ctx, rt, *restore)
	}
	if cerr := rt.Close(); cerr != nil {
		logger.Warn("Failed to close store", klog.FieldError, cerr)
	}
	if err != nil {
		logger.Error("Backup command failed", klog.FieldError, err)
		os.Exit(1)
	}
}

func writeBackup(ctx context.Context, rt *cli.Runtime, path string) error {
	b, err := rt.Ledger.Backup(ctx)
	if err != nil {
		return err
	}
	if path == "-" {
		return export.EncodeBackup(os.Stdout, b)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.EncodeBackup(f, b); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	klog.FromContext(ctx).InfoContext(ctx, "Backup written",
		"path", path,
		"members", len(b.Members),
		"expenses", len(b.Expenses))
	return nil
}

func restoreBackup(ctx context.Context, rt *cli.Runtime, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := rt.Ledger.Restore(ctx, f)
	if err != nil {
		return err
	}
	klog.FromContext(ctx).InfoContext(ctx, "Backup restored",
		"path", path,
		"members", res.Members,
		"expenses", res.Expenses)
	return nil
}
