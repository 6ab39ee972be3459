package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/logger"
)

var (
	notifyEvent  string
	notifyFrom   []string
	notifyTo     []string
	notifyFailed bool
	notifyRecord bool
	notifyDryRun bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Handle a transfer-complete event",
	Long: `Reverse-link the files of a transfer that just completed.

The event is read as JSON from --event (a file, or - for stdin):

  {"success": true, "file_list": ["/old/a.mkv"], "file_list_new": ["/new/a.mkv"]}

or given with repeated --from and --to flags, paired by position. Events
are ignored while the plugin is disabled. With --record the moved files
are also appended to the transfer history so later scans keep them linked.

Examples:
  revlink notify --from /downloads/a.mkv --to /media/a.mkv
  echo '{"success":true,...}' | revlink notify --event -`,
	Args: cobra.NoArgs,
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().StringVarP(&notifyEvent, "event", "e", "", "JSON event file, - for stdin")
	notifyCmd.Flags().StringSliceVar(&notifyFrom, "from", nil, "original path of a moved file (repeatable)")
	notifyCmd.Flags().StringSliceVar(&notifyTo, "to", nil, "new path of a moved file (repeatable)")
	notifyCmd.Flags().BoolVar(&notifyFailed, "failed", false, "the transfer did not succeed")
	notifyCmd.Flags().BoolVar(&notifyRecord, "record", false, "also append the moved files to the transfer history")
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "show what would happen without touching the filesystem")
	notifyCmd.MarkFlagsMutuallyExclusive("event", "from")
	notifyCmd.MarkFlagsMutuallyExclusive("event", "failed")
}

func runNotify(cmd *cobra.Command, args []string) error {
	event, err := readEvent(cmd.InOrStdin())
	if err != nil {
		return err
	}

	e, err := newEngine(engineOptions{dryRun: notifyDryRun, history: notifyRecord})
	if err != nil {
		return err
	}
	defer e.Close()

	if !e.plugin.State() {
		fmt.Fprintln(out(cmd), domain.ErrPluginDisabled)
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	results, err := e.plugin.HandleTransferComplete(ctx, event)
	if err != nil {
		if errors.Is(err, domain.ErrTransferFailed) {
			fmt.Fprintln(out(cmd), "Transfer failed, nothing to link")
			return nil
		}
		return err
	}

	failed := 0
	for _, r := range results {
		printResult(out(cmd), r)
		if r.Outcome == domain.OutcomeFailedIO {
			failed++
		}
	}

	if notifyRecord && !notifyDryRun {
		if err := recordEvent(cmd, e, event); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d links failed", failed, len(results))
	}
	return nil
}

func readEvent(stdin io.Reader) (domain.TransferEvent, error) {
	if notifyEvent == "" {
		if len(notifyFrom) == 0 && len(notifyTo) == 0 {
			return domain.TransferEvent{}, fmt.Errorf("either --event or --from/--to is required")
		}
		return domain.TransferEvent{
			Success:     !notifyFailed,
			FileList:    notifyFrom,
			FileListNew: notifyTo,
		}, nil
	}

	var r io.Reader = stdin
	if notifyEvent != "-" {
		f, err := os.Open(notifyEvent)
		if err != nil {
			return domain.TransferEvent{}, fmt.Errorf("open event: %w", err)
		}
		defer f.Close()
		r = f
	}

	var event domain.TransferEvent
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return domain.TransferEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return event, nil
}

// recordEvent appends each moved file as a single-file transfer
func recordEvent(cmd *cobra.Command, e *engine, event domain.TransferEvent) error {
	for i := range event.FileList {
		id, err := e.history.RecordTransfer(cmd.Context(), domain.TransferRecord{
			Source:      event.FileList[i],
			Destination: event.FileListNew[i],
			Files:       []string{event.FileList[i]},
			Mode:        "move",
			Success:     true,
			Status:      true,
		})
		if err != nil {
			return fmt.Errorf("record transfer: %w", err)
		}
		logger.Debug("transfer recorded", "id", id, "source", event.FileList[i])
	}
	return nil
}
