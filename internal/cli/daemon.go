package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/revlink/internal/daemon"
	"github.com/Ning0612/revlink/internal/lock"
	"github.com/Ning0612/revlink/internal/logger"
	"github.com/Ning0612/revlink/internal/service"
	"github.com/Ning0612/revlink/internal/state"
)

var (
	daemonMetricsAddr string
	daemonStopTimeout time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduled backlog scan",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the daemon in the foreground",
	Long: `Run the scheduled backlog scan until interrupted.

The daemon scans on the configured cron schedule, runs a single scan
shortly after start when onlyonce is set, and applies changes to the
configuration file without a restart.`,
	Args: cobra.NoArgs,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, scan lock and last scan status",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

func init() {
	daemonStartCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9310)")
	daemonStopCmd.Flags().DurationVar(&daemonStopTimeout, "timeout", 10*time.Second, "how long to wait for the daemon to exit")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	pidFile := daemon.NewPIDFile(cfg.PIDPath())
	if running, _ := pidFile.IsRunning(); running {
		pid, _ := pidFile.Read()
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer pidFile.Remove()

	svc, err := service.NewDaemonService(store, service.DaemonOptions{MetricsAddr: daemonMetricsAddr})
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "revlink daemon running (pid file %s), press Ctrl+C to stop\n", pidFile.Path())

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return svc.Stop()
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	pidFile := daemon.NewPIDFile(cfg.PIDPath())
	running, err := pidFile.IsRunning()
	if err != nil || !running {
		fmt.Fprintln(out(cmd), "Daemon is not running")
		return pidFile.Remove()
	}

	if err := pidFile.Kill(); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	if !pidFile.WaitForExit(daemonStopTimeout) {
		return fmt.Errorf("daemon did not exit within %s", daemonStopTimeout)
	}

	fmt.Fprintln(out(cmd), "Daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	w := out(cmd)

	pidFile := daemon.NewPIDFile(cfg.PIDPath())
	if running, _ := pidFile.IsRunning(); running {
		pid, _ := pidFile.Read()
		fmt.Fprintf(w, "Daemon:    running (pid %d)\n", pid)
	} else {
		fmt.Fprintln(w, "Daemon:    stopped")
	}

	fmt.Fprintf(w, "Enabled:   %t\n", cfg.Enabled)
	if cfg.Cron != "" {
		fmt.Fprintf(w, "Schedule:  %s\n", cfg.Cron)
	}

	scanLock, err := lock.NewFileLock(cfg.DataPath())
	if err != nil {
		return err
	}
	if holder, err := scanLock.GetHolder(); err == nil && holder != nil {
		fmt.Fprintf(w, "Scan lock: held by pid %d on %s (%s) since %s\n",
			holder.PID, holder.Hostname, holder.Job, holder.StartTime.Local().Format(time.DateTime))
	} else {
		fmt.Fprintln(w, "Scan lock: free")
	}

	mgr, err := state.NewManager(cfg.DataPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer mgr.Close()

	run, err := mgr.LastScanRun()
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintln(w, "Last scan: never")
		return nil
	}
	fmt.Fprintf(w, "Last scan: %s (%s, %s) %d records, %d links, %d changed, %d failed\n",
		run.StartTime.Local().Format(time.DateTime), run.Trigger, run.Status,
		run.Records, run.Links, run.Created+run.Repaired, run.Failed)
	return nil
}
