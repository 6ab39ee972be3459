package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ning0612/revlink/internal/domain"
)

var linkDryRun bool

var linkCmd = &cobra.Command{
	Use:   "link <source> <destination>",
	Short: "Reverse-link a single moved file",
	Long: `Leave a symbolic link at <source> pointing to <destination>, the file's
new location.

The link is only made when the source directory is enabled in the
configuration and the destination is a regular file. An existing file at
the source is replaced only when enforced is set.

Examples:
  revlink link /downloads/movie.mkv /media/movies/movie.mkv
  revlink link --dry-run /downloads/movie.mkv /media/movies/movie.mkv`,
	Args: cobra.ExactArgs(2),
	RunE: runLink,
}

func init() {
	linkCmd.Flags().BoolVar(&linkDryRun, "dry-run", false, "show what would happen without touching the filesystem")
}

func runLink(cmd *cobra.Command, args []string) error {
	e, err := newEngine(engineOptions{dryRun: linkDryRun})
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.plugin.Reconcile(args[0], args[1])
	if err != nil {
		return err
	}
	printResult(out(cmd), result)

	if result.Outcome == domain.OutcomeFailedIO {
		return result.AsError()
	}
	return nil
}

// printResult writes one line per reconciled pair
func printResult(w io.Writer, r domain.Result) {
	prefix := ""
	if r.DryRun {
		prefix = "[dry-run] "
	}
	fmt.Fprintf(w, "%s%-30s %s -> %s\n", prefix, r.Outcome, r.Request.Source, r.Request.Destination)
	if err := r.AsError(); err != nil && r.Outcome == domain.OutcomeFailedIO {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
}
