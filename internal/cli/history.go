package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/state"
)

var (
	historySource string
	historyDest   string
	historyFiles  []string
	historyMode   string
	historyFailed bool

	historyLimit int
	historyRuns  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or extend the transfer history",
}

var historyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a transfer to the history",
	Long: `Append a transfer to the history the scan replays.

A single file move lists the moved file itself with --file; a directory
move lists every file it contained.

Examples:
  revlink history add --source /dl/a.mkv --dest /media/a.mkv --file /dl/a.mkv
  revlink history add --source /dl/show --dest /media/show \
    --file /dl/show/e01.mkv --file /dl/show/e02.mkv`,
	Args: cobra.NoArgs,
	RunE: runHistoryAdd,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent transfers or scan runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

func init() {
	historyAddCmd.Flags().StringVar(&historySource, "source", "", "original path of the transfer")
	historyAddCmd.Flags().StringVar(&historyDest, "dest", "", "new path of the transfer")
	historyAddCmd.Flags().StringSliceVarP(&historyFiles, "file", "f", nil, "file moved by the transfer (repeatable)")
	historyAddCmd.Flags().StringVar(&historyMode, "mode", "move", "transfer mode")
	historyAddCmd.Flags().BoolVar(&historyFailed, "failed", false, "record the transfer as failed")
	historyAddCmd.MarkFlagRequired("source")
	historyAddCmd.MarkFlagRequired("dest")

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyListCmd.Flags().BoolVar(&historyRuns, "runs", false, "list scan runs instead of transfers")

	historyCmd.AddCommand(historyAddCmd)
	historyCmd.AddCommand(historyListCmd)
}

func runHistoryAdd(cmd *cobra.Command, args []string) error {
	mgr, err := state.NewManager(cfg.DataPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer mgr.Close()

	id, err := mgr.RecordTransfer(cmd.Context(), domain.TransferRecord{
		Source:      historySource,
		Destination: historyDest,
		Files:       historyFiles,
		Mode:        historyMode,
		Success:     !historyFailed,
		Status:      !historyFailed,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out(cmd), "Recorded transfer %d\n", id)
	return nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	mgr, err := state.NewManager(cfg.DataPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer mgr.Close()

	if historyRuns {
		runs, err := mgr.GetScanRuns(historyLimit)
		if err != nil {
			return err
		}
		printScanRuns(out(cmd), runs)
		return nil
	}

	records, err := mgr.ListTransfers(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	printTransfers(out(cmd), records)
	return nil
}

func printTransfers(w io.Writer, records []domain.TransferRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No transfers recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tOK\tFILES\tSOURCE\tDESTINATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%d\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Status, len(r.Files), r.Source, r.Destination)
	}
	tw.Flush()
}

func printScanRuns(w io.Writer, runs []state.ScanRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No scans recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTRIGGER\tSTATUS\tRECORDS\tLINKS\tCHANGED\tFAILED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartTime.Local().Format(time.DateTime), r.Trigger, r.Status,
			r.Records, r.Links, r.Created+r.Repaired, r.Failed,
			r.EndTime.Sub(r.StartTime).Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(tw, "\t\terror: %s\n", strings.TrimSpace(r.Error))
		}
	}
	tw.Flush()
}
