package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/revlink/internal/core/scanner"
	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/progress"
	"github.com/Ning0612/revlink/internal/service"
)

var (
	scanDryRun   bool
	scanProgress bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Replay the transfer history and reverse-link every moved file",
	Long: `Walk every successful transfer in the history and make sure each moved
file has a link at its original location.

Only one scan runs at a time across all revlink processes; a second scan
exits with an error while the first holds the lock. Interrupting a scan
stops it after the current link.

Examples:
  revlink scan
  revlink scan --dry-run
  revlink scan --progress`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "plan every link without touching the filesystem")
	scanCmd.Flags().BoolVar(&scanProgress, "progress", false, "show a progress bar on stderr")
}

func runScan(cmd *cobra.Command, args []string) error {
	opts := engineOptions{dryRun: scanDryRun, history: true}
	if scanProgress {
		opts.reporter = progress.NewCallbackReporter(progressPrinter(cmd.ErrOrStderr()))
	}

	e, err := newEngine(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signalContext()
	defer stop()

	summary, err := e.plugin.RunScan(ctx, service.TriggerManual)
	if scanProgress {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if errors.Is(err, domain.ErrScanInProgress) {
		return fmt.Errorf("another scan is running: %w", err)
	}

	printSummary(out(cmd), summary, scanDryRun)
	if err != nil {
		return err
	}
	if summary.Failed() > 0 {
		return fmt.Errorf("%d links failed", summary.Failed())
	}
	return nil
}

func progressPrinter(w io.Writer) progress.Callback {
	return func(u progress.Update) {
		if u.Type != progress.UpdateRecordComplete || u.RecordsTotal == 0 {
			return
		}
		fmt.Fprintf(w, "\r%s %d/%d records, %d links",
			progress.FormatProgress(int64(u.RecordsCompleted), int64(u.RecordsTotal), 30),
			u.RecordsCompleted, u.RecordsTotal, u.Links)
		if !isTerminal(os.Stderr) {
			fmt.Fprintln(w)
		}
	}
}

func printSummary(w io.Writer, s scanner.Summary, dryRun bool) {
	if dryRun {
		fmt.Fprintln(w, "Dry run, nothing was changed")
	}
	fmt.Fprintf(w, "Records:   %d (%d malformed)\n", s.Records, s.Malformed)
	fmt.Fprintf(w, "Links:     %d\n", s.Links)
	for _, o := range domain.AllOutcomes {
		if n := s.Count(o); n > 0 {
			fmt.Fprintf(w, "  %-30s %d\n", o, n)
		}
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
