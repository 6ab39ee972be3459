// Package cli provides the command-line interface for revlink.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ning0612/revlink/internal/config"
	"github.com/Ning0612/revlink/internal/logger"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	logLevel   string
	logFormat  string
	dataDir    string

	// Loaded in PersistentPreRunE
	store *config.Store
	cfg   *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "revlink",
	Short: "Leave a symlink behind every moved file",
	Long: `revlink keeps a symbolic link at the original location of every file a
media manager moved, pointing at the file's new home. Seeding torrents and
other tools that still look at the old path keep working.

Links are made when a transfer completes (revlink notify) and by replaying
the transfer history (revlink scan, or on a schedule under revlink daemon).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		flags := cmd.Root().PersistentFlags()
		var err error
		store, err = config.Open(configPath,
			config.FlagBinding{Key: "log.level", Flag: flags.Lookup("log-level")},
			config.FlagBinding{Key: "log.format", Flag: flags.Lookup("log-format")},
			config.FlagBinding{Key: "data_dir", Flag: flags.Lookup("data-dir")},
		)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = store.Config()
		if err := cfg.Validate(); err != nil {
			return err
		}

		// A previous run in the same process may have left a logger behind
		_ = logger.Shutdown()
		if err := logger.Init(cfg.LoggerConfig()); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := logger.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to flush logs: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search ./, ~/.config/revlink, /etc/revlink)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "console log format: text, json")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the history database, scan lock and PID file")

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(daemonCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// out is where command results are printed
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
