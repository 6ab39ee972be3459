package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/revlink/internal/adapter"
	"github.com/Ning0612/revlink/internal/config"
	"github.com/Ning0612/revlink/internal/core/expansion"
	"github.com/Ning0612/revlink/internal/core/reconciler"
	"github.com/Ning0612/revlink/internal/core/scanner"
	"github.com/Ning0612/revlink/internal/core/scope"
	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/lock"
	"github.com/Ning0612/revlink/internal/logger"
	"github.com/Ning0612/revlink/internal/metrics"
	"github.com/Ning0612/revlink/internal/progress"
	"github.com/Ning0612/revlink/internal/scheduler"
	"github.com/Ning0612/revlink/internal/state"
)

const (
	// ScanJobID identifies the periodic backlog scan
	ScanJobID = "RSoftlinking"
	// OnceJobID identifies the one-shot scan requested by onlyonce
	OnceJobID = "RSoftlinking-once"
	// DefaultOnceDelay is how long after ApplyConfig the one-shot scan starts
	DefaultOnceDelay = 3 * time.Second
)

// Scan triggers
const (
	TriggerCron   = "cron"
	TriggerOnce   = "once"
	TriggerManual = "manual"
)

// History is the transfer history the plugin scans and the log of its scans
type History interface {
	scanner.HistoryStore
	SaveScanRun(run state.ScanRun) error
}

// JobRegistry is the scheduler surface the plugin registers its jobs with
type JobRegistry interface {
	Register(spec scheduler.JobSpec) error
	Remove(id string) bool
}

// ConfigWriter persists configuration changes
type ConfigWriter interface {
	Update(fn func(*config.Config)) error
}

// Deps are the collaborators of a Plugin. FS is required; the rest are optional.
type Deps struct {
	FS      adapter.Adapter
	History History

	// LockDir holds the cross-process scan lock; empty disables locking
	LockDir string

	Scheduler JobRegistry
	Config    ConfigWriter
	Metrics   *metrics.Recorder
	Reporter  progress.Reporter

	// DryRun plans every link without touching the filesystem
	DryRun bool

	// OnceDelay overrides DefaultOnceDelay
	OnceDelay time.Duration
}

// Plugin is the reverse-link plugin. It holds the engine built from the
// current configuration snapshot and exposes the host-facing operations:
// apply a configuration, list scheduled services, handle a transfer-complete
// event, run a backlog scan and shut down.
type Plugin struct {
	deps Deps

	// applyMu serialises ApplyConfig; triggers only load rt
	applyMu sync.Mutex
	rt      atomic.Pointer[runtime]
}

// runtime is everything derived from one snapshot
type runtime struct {
	snapshot   config.Snapshot
	reconciler *reconciler.Reconciler
	expander   *expansion.Expander
}

// NewPlugin creates an unconfigured plugin; call ApplyConfig before use
func NewPlugin(deps Deps) (*Plugin, error) {
	if deps.FS == nil {
		return nil, fmt.Errorf("filesystem adapter cannot be nil")
	}
	if deps.Reporter == nil {
		deps.Reporter = progress.NullReporter{}
	}
	if deps.OnceDelay <= 0 {
		deps.OnceDelay = DefaultOnceDelay
	}
	return &Plugin{deps: deps}, nil
}

// ApplyConfig swaps in an engine built from snap and re-registers the
// scheduled jobs. When snap requests a single run, a one-shot scan is
// scheduled and the request is cleared in the persisted configuration.
func (p *Plugin) ApplyConfig(snap config.Snapshot) error {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	opts := reconciler.Options{
		Enforced: snap.Enforced,
		DryRun:   p.deps.DryRun,
	}
	if p.deps.Metrics != nil {
		opts.Observer = p.deps.Metrics
	}

	p.rt.Store(&runtime{
		snapshot:   snap,
		reconciler: reconciler.New(p.deps.FS, scope.New(snap.EnabledDirs), opts),
		expander:   expansion.New(p.deps.FS, expansion.Options{RelaxedDirectoryMode: snap.RelaxedDirectoryMode}),
	})

	logger.Info("configuration applied",
		"enabled", snap.Enabled,
		"enforced", snap.Enforced,
		"enabled_dirs", snap.EnabledDirs,
		"cron", snap.Cron,
		"run_once", snap.RunOnce,
	)

	if p.deps.Scheduler == nil {
		return nil
	}

	// Register replaces the periodic job in place so a run still in flight
	// keeps blocking the next tick. The one-shot job is left alone: it
	// removes itself after running, and clearing onlyonce below triggers
	// another ApplyConfig.
	services := p.Services()
	if len(services) == 0 {
		p.deps.Scheduler.Remove(ScanJobID)
	}
	for _, spec := range services {
		if err := p.deps.Scheduler.Register(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.ID, err)
		}
	}

	if !snap.RunOnce {
		return nil
	}

	runAt := time.Now().Add(p.deps.OnceDelay)
	if err := p.deps.Scheduler.Register(scheduler.JobSpec{
		ID:    OnceJobID,
		Name:  "reverse link: scan transfer history once",
		RunAt: runAt,
		Run:   p.scanJob(TriggerOnce),
	}); err != nil {
		return fmt.Errorf("register %s: %w", OnceJobID, err)
	}
	logger.Info("single backlog scan scheduled", "run_at", runAt)

	if p.deps.Config != nil {
		if err := p.deps.Config.Update(func(c *config.Config) { c.OnlyOnce = false }); err != nil {
			return fmt.Errorf("clear onlyonce: %w", err)
		}
	}
	return nil
}

// Services returns the periodic jobs the current configuration asks for
func (p *Plugin) Services() []scheduler.JobSpec {
	rt := p.rt.Load()
	if rt == nil || !rt.snapshot.Enabled || rt.snapshot.Cron == "" {
		return nil
	}
	return []scheduler.JobSpec{{
		ID:   ScanJobID,
		Name: "reverse link: scan transfer history",
		Cron: rt.snapshot.Cron,
		Run:  p.scanJob(TriggerCron),
	}}
}

func (p *Plugin) scanJob(trigger string) scheduler.JobFunc {
	return func(ctx context.Context) error {
		_, err := p.RunScan(ctx, trigger)
		return err
	}
}

// State reports whether the plugin is enabled
func (p *Plugin) State() bool {
	rt := p.rt.Load()
	return rt != nil && rt.snapshot.Enabled
}

// Snapshot returns the configuration currently in effect
func (p *Plugin) Snapshot() (config.Snapshot, bool) {
	rt := p.rt.Load()
	if rt == nil {
		return config.Snapshot{}, false
	}
	return rt.snapshot, true
}

func (p *Plugin) current() (*runtime, error) {
	rt := p.rt.Load()
	if rt == nil {
		return nil, fmt.Errorf("plugin is not configured")
	}
	return rt, nil
}

// HandleTransferComplete reverse-links every file of a completed transfer.
// A disabled plugin ignores the event. A failed transfer or a malformed
// event is rejected before anything is touched.
func (p *Plugin) HandleTransferComplete(ctx context.Context, event domain.TransferEvent) ([]domain.Result, error) {
	rt := p.rt.Load()
	if rt == nil || !rt.snapshot.Enabled {
		p.observeEvent("ignored")
		logger.Debug("plugin disabled, ignoring transfer event")
		return nil, nil
	}

	if !event.Success {
		p.observeEvent("rejected")
		logger.Warn("transfer failed, skipping")
		return nil, domain.ErrTransferFailed
	}
	if len(event.FileList) != len(event.FileListNew) {
		p.observeEvent("rejected")
		logger.Error("file lists do not match, malformed event",
			"file_list", len(event.FileList), "file_list_new", len(event.FileListNew))
		return nil, fmt.Errorf("%w: %d source paths, %d destination paths",
			domain.ErrMalformedEvent, len(event.FileList), len(event.FileListNew))
	}

	requests := make([]domain.LinkRequest, len(event.FileList))
	for i := range event.FileList {
		requests[i] = domain.LinkRequest{Source: event.FileList[i], Destination: event.FileListNew[i]}
	}

	p.observeEvent("handled")
	return rt.reconciler.ReconcileAll(ctx, requests)
}

// Reconcile reverse-links a single pair with the current configuration
func (p *Plugin) Reconcile(source, destination string) (domain.Result, error) {
	rt, err := p.current()
	if err != nil {
		return domain.Result{}, err
	}
	return rt.reconciler.Reconcile(source, destination), nil
}

// RunScan replays the successful transfer history under the scan lock and
// records the run. Lock contention returns domain.ErrScanInProgress.
func (p *Plugin) RunScan(ctx context.Context, trigger string) (scanner.Summary, error) {
	rt, err := p.current()
	if err != nil {
		return scanner.Summary{}, err
	}
	if p.deps.History == nil {
		return scanner.Summary{}, fmt.Errorf("no transfer history configured")
	}

	if p.deps.LockDir != "" {
		fileLock, err := lock.NewFileLock(p.deps.LockDir)
		if err != nil {
			return scanner.Summary{}, fmt.Errorf("failed to create scan lock: %w", err)
		}
		if err := fileLock.Acquire(trigger); err != nil {
			if lock.IsLockError(err) {
				if p.deps.Metrics != nil {
					p.deps.Metrics.ObserveLockContended()
				}
				logger.Warn("another scan is running, skipping", "trigger", trigger, "error", err)
			}
			return scanner.Summary{}, err
		}
		defer fileLock.Release()
	}

	run := state.ScanRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartTime: time.Now(),
	}
	log := logger.With("scan_id", run.ID, "trigger", trigger)
	log.Info("backlog scan started", "dry_run", p.deps.DryRun)

	opts := scanner.Options{
		PageSize: rt.snapshot.PageSize,
		Reporter: p.deps.Reporter,
	}
	if p.deps.Metrics != nil {
		opts.Observer = p.deps.Metrics
	}
	summary, scanErr := scanner.New(p.deps.History, rt.expander, rt.reconciler, opts).ScanAll(ctx)

	run.EndTime = time.Now()
	run.Status = scanStatus(summary, scanErr)
	run.Records = summary.Records
	run.Malformed = summary.Malformed
	run.Links = summary.Links
	run.Created = summary.Count(domain.OutcomeCreated)
	run.Repaired = summary.Count(domain.OutcomeRepaired)
	run.Skipped = summary.Skipped()
	run.Failed = summary.Failed()
	if scanErr != nil {
		run.Error = scanErr.Error()
	}

	if !p.deps.DryRun {
		if err := p.deps.History.SaveScanRun(run); err != nil {
			log.Warn("failed to record scan run", "error", err)
		}
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveScan(trigger, run.Status, run.Records, run.EndTime.Sub(run.StartTime))
	}

	log.Info("backlog scan finished",
		"status", run.Status,
		"records", run.Records,
		"malformed", run.Malformed,
		"links", run.Links,
		"created", run.Created,
		"repaired", run.Repaired,
		"skipped", run.Skipped,
		"failed", run.Failed,
		"duration", run.EndTime.Sub(run.StartTime),
	)
	return summary, scanErr
}

func scanStatus(summary scanner.Summary, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return state.ScanCancelled
	case err != nil:
		return state.ScanFailed
	case summary.Failed() > 0:
		return state.ScanPartial
	default:
		return state.ScanSuccess
	}
}

// Shutdown unregisters the plugin's jobs. Runs already in progress finish.
func (p *Plugin) Shutdown() {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	if p.deps.Scheduler == nil {
		return
	}
	p.deps.Scheduler.Remove(ScanJobID)
	p.deps.Scheduler.Remove(OnceJobID)
}

func (p *Plugin) observeEvent(result string) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveEvent(result)
	}
}
