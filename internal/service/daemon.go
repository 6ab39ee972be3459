package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Ning0612/revlink/internal/adapter/local"
	"github.com/Ning0612/revlink/internal/config"
	"github.com/Ning0612/revlink/internal/logger"
	"github.com/Ning0612/revlink/internal/metrics"
	"github.com/Ning0612/revlink/internal/scheduler"
	"github.com/Ning0612/revlink/internal/state"
)

// DaemonOptions configures a DaemonService
type DaemonOptions struct {
	// MetricsAddr serves /metrics when non-empty (e.g. ":9310")
	MetricsAddr string

	// OnceDelay overrides the delay of the onlyonce scan
	OnceDelay time.Duration
}

// DaemonService runs the plugin with its scheduler and keeps it in step with
// the configuration file
type DaemonService struct {
	mu        sync.RWMutex
	store     *config.Store
	opts      DaemonOptions
	scheduler *scheduler.CronScheduler
	plugin    *Plugin
	stateMgr  *state.Manager
	metrics   *metrics.Recorder
	server    *http.Server
	running   bool

	// applied is what the last reload acted on
	applied struct {
		snapshot config.Snapshot
		log      config.LogConfig
	}
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool
	Enabled        bool
	SchedulerStats *scheduler.Status
	LastScan       *state.ScanRun
}

// NewDaemonService creates a new daemon service
func NewDaemonService(store *config.Store, opts DaemonOptions) (*DaemonService, error) {
	if store == nil {
		return nil, fmt.Errorf("config store cannot be nil")
	}
	cfg := store.Config()

	stateMgr, err := state.NewManager(cfg.DataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}

	sched := scheduler.NewCronScheduler()
	recorder := metrics.New()

	plugin, err := NewPlugin(Deps{
		FS:        local.New(),
		History:   stateMgr,
		LockDir:   cfg.DataPath(),
		Scheduler: sched,
		Config:    store,
		Metrics:   recorder,
		OnceDelay: opts.OnceDelay,
	})
	if err != nil {
		stateMgr.Close()
		return nil, fmt.Errorf("failed to create plugin: %w", err)
	}

	return &DaemonService{
		store:     store,
		opts:      opts,
		scheduler: sched,
		plugin:    plugin,
		stateMgr:  stateMgr,
		metrics:   recorder,
	}, nil
}

// Plugin returns the plugin the daemon drives
func (d *DaemonService) Plugin() *Plugin {
	return d.plugin
}

// Start applies the current configuration, starts the scheduler and begins
// watching the configuration file
func (d *DaemonService) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	cfg := d.store.Config()
	if err := d.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := d.plugin.ApplyConfig(cfg.Snapshot()); err != nil {
		d.scheduler.Stop()
		return fmt.Errorf("failed to apply configuration: %w", err)
	}
	d.applied.snapshot = cfg.Snapshot()
	d.applied.log = cfg.Log

	if d.opts.MetricsAddr != "" {
		d.startMetricsServer()
	}

	d.store.Watch(d.reload)
	d.running = true

	logger.Info("daemon started",
		"config", d.store.Path(),
		"data_dir", cfg.DataPath(),
		"metrics_addr", d.opts.MetricsAddr,
	)
	return nil
}

func (d *DaemonService) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())

	d.server = &http.Server{
		Addr:              d.opts.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", srv.Addr, "error", err)
		}
	}(d.server)
}

// reload is called by the config watcher with the re-read configuration
func (d *DaemonService) reload(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}

	if cfg.Log != d.applied.log {
		if err := logger.Replace(cfg.LoggerConfig()); err != nil {
			logger.Warn("failed to apply log settings", "error", err)
		} else {
			d.applied.log = cfg.Log
		}
	}

	snap := cfg.Snapshot()
	if snap.Equal(d.applied.snapshot) {
		logger.Debug("configuration unchanged, nothing to apply")
		return
	}
	if err := d.plugin.ApplyConfig(snap); err != nil {
		logger.Error("failed to apply reloaded configuration", "error", err)
		return
	}
	d.applied.snapshot = snap
}

// Stop unregisters the plugin's jobs, stops the scheduler (cancelling any
// scan still running) and the metrics server
func (d *DaemonService) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return fmt.Errorf("daemon is not running")
	}
	return d.stopLocked()
}

func (d *DaemonService) stopLocked() error {
	var errs []error

	d.plugin.Shutdown()
	if d.scheduler.Status().Running {
		if err := d.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
		}
	} else {
		// The start context was cancelled; its runs are cancelled too
		d.scheduler.Wait()
	}

	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
		cancel()
		d.server = nil
	}

	d.running = false
	logger.Info("daemon stopped")
	return errors.Join(errs...)
}

// Status returns the current daemon status
func (d *DaemonService) Status() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &DaemonStatus{
		Running:        d.running,
		Enabled:        d.plugin.State(),
		SchedulerStats: d.scheduler.Status(),
	}

	if run, err := d.stateMgr.LastScanRun(); err == nil {
		status.LastScan = run
	}

	return status
}

// Close releases all resources
func (d *DaemonService) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.running {
		if err := d.stopLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.stateMgr.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
