package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"eaglelink/internal/config"
	"eaglelink/internal/eagle"
	"eaglelink/internal/logging"
	"eaglelink/internal/relink"
	"eaglelink/internal/vault"
)

type runOptions struct {
	VaultPath   string
	DryRun      bool
	Yes         bool
	Concurrency int
}

func main() {
	logging.Setup()
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func runCLI(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("eagle-relink", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var opts runOptions
	fs.StringVar(&opts.VaultPath, "vault", "", "vault root (defaults to $EAGLE_VAULT_PATH)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "show pending rewrites without writing")
	fs.BoolVar(&opts.Yes, "yes", false, "auto-confirm rewrites")
	fs.IntVar(&opts.Concurrency, "concurrency", 0, "parallel item resolutions (default 8)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		_, _ = fmt.Fprintln(errOut, "usage: eagle-relink [--vault <path>] [--dry-run] [--yes] [--concurrency <n>]")
		return 2
	}
	if opts.Yes && opts.DryRun {
		_, _ = fmt.Fprintln(errOut, "ERROR: --yes has no effect with --dry-run")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	if opts.VaultPath != "" {
		cfg.VaultPath = opts.VaultPath
	}
	if cfg.VaultPath == "" {
		_, _ = fmt.Fprintln(errOut, "ERROR: vault path is required (--vault or EAGLE_VAULT_PATH)")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := vault.Open(cfg.VaultPath)
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	notes, err := store.ListNotes()
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	client := eagle.NewClient(&cfg)
	uploader := eagle.NewUploader(&cfg, client, store)
	engine := relink.New(store, uploader)

	runOpts := relink.Options{
		Concurrency: opts.Concurrency,
		DryRun:      opts.DryRun,
	}
	if !opts.DryRun && !opts.Yes {
		runOpts.Confirm = func(files, links int) (bool, error) {
			return promptYesNo(fmt.Sprintf("Rewrite %d links in %d files? [y/N]: ", links, files))
		}
	}

	report, err := engine.Run(ctx, notes, runOpts)
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	for _, diff := range report.Diffs {
		_, _ = fmt.Fprintln(out, diff)
	}
	printReport(out, store.Root(), report, opts.DryRun)

	if len(report.FailedItemIDs) > 0 {
		return 1
	}
	return 0
}

func printReport(out io.Writer, root string, report relink.Report, dryRun bool) {
	_, _ = fmt.Fprintf(out, "Relink report: %s\n", root)
	_, _ = fmt.Fprintf(out, "  files scanned   : %d\n", report.FilesScanned)
	_, _ = fmt.Fprintf(out, "  candidate links : %d\n", report.CandidateLinks)
	if dryRun {
		_, _ = fmt.Fprintf(out, "  pending links   : %d\n", report.UpdatedLinks)
		_, _ = fmt.Fprintf(out, "  pending files   : %d\n", report.UpdatedFiles)
	} else {
		_, _ = fmt.Fprintf(out, "  updated links   : %d\n", report.UpdatedLinks)
		_, _ = fmt.Fprintf(out, "  updated files   : %d\n", report.UpdatedFiles)
	}
	_, _ = fmt.Fprintf(out, "  failed items    : %d\n", len(report.FailedItemIDs))
	for _, id := range report.FailedItemIDs {
		_, _ = fmt.Fprintf(out, "    - %s\n", id)
	}
	_, _ = fmt.Fprintf(out, "files=%d candidates=%d updated=%d updated_files=%d failed=%d dry_run=%t\n",
		report.FilesScanned, report.CandidateLinks, report.UpdatedLinks, report.UpdatedFiles, len(report.FailedItemIDs), dryRun)
}

func promptYesNo(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal (use --yes to auto-confirm)")
	}
	fmt.Fprint(os.Stderr, prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes", nil
}
