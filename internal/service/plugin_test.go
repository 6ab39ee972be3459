package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/revlink/internal/adapter/local"
	"github.com/Ning0612/revlink/internal/config"
	"github.com/Ning0612/revlink/internal/core/scanner"
	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/lock"
	"github.com/Ning0612/revlink/internal/metrics"
	"github.com/Ning0612/revlink/internal/scheduler"
	"github.com/Ning0612/revlink/internal/state"
	"github.com/Ning0612/revlink/internal/testutil"
)

// recordingWriter applies updates to an in-memory configuration
type recordingWriter struct {
	mu      sync.Mutex
	cfg     config.Config
	updates int
}

func (w *recordingWriter) Update(fn func(*config.Config)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.cfg)
	w.updates++
	return nil
}

type fixture struct {
	root    string
	plugin  *Plugin
	history *state.Manager
	sched   *scheduler.CronScheduler
	metrics *metrics.Recorder
	writer  *recordingWriter
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	root, cleanup := testutil.TempDir(t)
	t.Cleanup(cleanup)

	history, err := state.NewManager(filepath.Join(root, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	f := &fixture{
		root:    root,
		history: history,
		sched:   scheduler.NewCronScheduler(),
		metrics: metrics.New(),
		writer:  &recordingWriter{cfg: config.Config{OnlyOnce: true}},
	}

	deps := Deps{
		FS:        local.New(),
		History:   history,
		LockDir:   filepath.Join(root, "data"),
		Scheduler: f.sched,
		Config:    f.writer,
		Metrics:   f.metrics,
	}
	if mutate != nil {
		mutate(&deps)
	}

	f.plugin, err = NewPlugin(deps)
	require.NoError(t, err)
	return f
}

func (f *fixture) path(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func enabled(dirs ...string) config.Snapshot {
	return config.Snapshot{Enabled: true, EnabledDirs: dirs, PageSize: 10}
}

// counterValue reads one sample from the recorder's registry
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewPlugin_RequiresFS(t *testing.T) {
	_, err := NewPlugin(Deps{})
	assert.Error(t, err)
}

func TestHandleTransferComplete_Disabled(t *testing.T) {
	f := newFixture(t, nil)
	testutil.CreateMediaTree(t, f.root, "lib/a.mkv")

	event := domain.TransferEvent{
		Success:     true,
		FileList:    []string{f.path("in/a.mkv")},
		FileListNew: []string{f.path("lib/a.mkv")},
	}

	// Not configured yet
	results, err := f.plugin.HandleTransferComplete(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, f.plugin.ApplyConfig(config.Snapshot{Enabled: false, PageSize: 10}))
	results, err = f.plugin.HandleTransferComplete(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = os.Lstat(f.path("in/a.mkv"))
	assert.True(t, os.IsNotExist(err), "disabled plugin must not touch the filesystem")
	assert.Equal(t, 2.0, counterValue(t, f.metrics.Registry(), "revlink_transfer_events_total", map[string]string{"result": "ignored"}))
}

func TestHandleTransferComplete_Rejected(t *testing.T) {
	f := newFixture(t, nil)
	testutil.CreateMediaTree(t, f.root, "lib/a.mkv", "lib/b.mkv")
	require.NoError(t, f.plugin.ApplyConfig(enabled()))

	tests := []struct {
		name  string
		event domain.TransferEvent
		want  error
	}{
		{
			name: "failed transfer",
			event: domain.TransferEvent{
				Success:     false,
				FileList:    []string{f.path("in/a.mkv")},
				FileListNew: []string{f.path("lib/a.mkv")},
			},
			want: domain.ErrTransferFailed,
		},
		{
			name: "length mismatch",
			event: domain.TransferEvent{
				Success:     true,
				FileList:    []string{f.path("in/a.mkv"), f.path("in/b.mkv")},
				FileListNew: []string{f.path("lib/a.mkv")},
			},
			want: domain.ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := f.plugin.HandleTransferComplete(context.Background(), tt.event)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, results)

			_, statErr := os.Lstat(f.path("in/a.mkv"))
			assert.True(t, os.IsNotExist(statErr), "rejected event must not mutate")
		})
	}
}

func TestHandleTransferComplete_LinksEveryPair(t *testing.T) {
	f := newFixture(t, nil)
	testutil.CreateMediaTree(t, f.root, "lib/a.mkv", "lib/b.mkv")
	require.NoError(t, f.plugin.ApplyConfig(enabled(f.path("in"))))

	event := domain.TransferEvent{
		Success:     true,
		FileList:    []string{f.path("in/a.mkv"), f.path("elsewhere/b.mkv")},
		FileListNew: []string{f.path("lib/a.mkv"), f.path("lib/b.mkv")},
	}

	results, err := f.plugin.HandleTransferComplete(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.OutcomeCreated, results[0].Outcome)
	assert.Equal(t, domain.OutcomeSkippedOutOfScope, results[1].Outcome)
	assert.Equal(t, f.path("lib/a.mkv"), testutil.ReadLink(t, f.path("in/a.mkv")))

	// Replaying the same event is idempotent
	results, err = f.plugin.HandleTransferComplete(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyValid, results[0].Outcome)

	reg := f.metrics.Registry()
	assert.Equal(t, 1.0, counterValue(t, reg, "revlink_link_outcomes_total", map[string]string{"outcome": "created"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "revlink_link_outcomes_total", map[string]string{"outcome": "already_valid"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "revlink_transfer_events_total", map[string]string{"result": "handled"}))
}

func TestReconcile_UsesCurrentSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	testutil.CreateMediaTree(t, f.root, "lib/a.mkv", "in/a.mkv")

	_, err := f.plugin.Reconcile(f.path("in/a.mkv"), f.path("lib/a.mkv"))
	assert.Error(t, err, "unconfigured plugin")

	require.NoError(t, f.plugin.ApplyConfig(enabled()))
	result, err := f.plugin.Reconcile(f.path("in/a.mkv"), f.path("lib/a.mkv"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedConflictNotEnforced, result.Outcome)

	snap := enabled()
	snap.Enforced = true
	require.NoError(t, f.plugin.ApplyConfig(snap))
	result, err = f.plugin.Reconcile(f.path("in/a.mkv"), f.path("lib/a.mkv"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRepaired, result.Outcome)
	assert.Equal(t, f.path("lib/a.mkv"), testutil.ReadLink(t, f.path("in/a.mkv")))
}

func TestApplyConfig_RegistersServices(t *testing.T) {
	f := newFixture(t, nil)

	snap := enabled()
	snap.Cron = "0 */6 * * *"
	require.NoError(t, f.plugin.ApplyConfig(snap))

	assert.True(t, f.plugin.State())
	services := f.plugin.Services()
	require.Len(t, services, 1)
	assert.Equal(t, ScanJobID, services[0].ID)
	assert.Equal(t, "0 */6 * * *", services[0].Cron)

	_, ok := f.sched.Status().Job(ScanJobID)
	assert.True(t, ok, "cron job registered")

	// Disabling removes the periodic job
	snap.Enabled = false
	require.NoError(t, f.plugin.ApplyConfig(snap))
	assert.False(t, f.plugin.State())
	assert.Empty(t, f.plugin.Services())
	_, ok = f.sched.Status().Job(ScanJobID)
	assert.False(t, ok)

	// Enabled without a schedule has no periodic job either
	require.NoError(t, f.plugin.ApplyConfig(enabled()))
	assert.Empty(t, f.plugin.Services())
}

// registryCalls records the job registry calls ApplyConfig makes
type registryCalls struct {
	mu         sync.Mutex
	registered []string
	removed    []string
}

func (r *registryCalls) Register(spec scheduler.JobSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, spec.ID)
	return nil
}

func (r *registryCalls) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return true
}

func TestApplyConfig_ReplacesPeriodicJobInPlace(t *testing.T) {
	calls := &registryCalls{}
	f := newFixture(t, func(d *Deps) { d.Scheduler = calls })

	snap := enabled()
	snap.Cron = "0 */6 * * *"
	require.NoError(t, f.plugin.ApplyConfig(snap))
	snap.Enforced = true
	require.NoError(t, f.plugin.ApplyConfig(snap))

	assert.Equal(t, []string{ScanJobID, ScanJobID}, calls.registered)
	assert.Empty(t, calls.removed, "a reload must not drop the running job's state")

	snap.Enabled = false
	require.NoError(t, f.plugin.ApplyConfig(snap))
	assert.Equal(t, []string{ScanJobID}, calls.removed)
}

func TestApplyConfig_InvalidCron(t *testing.T) {
	f := newFixture(t, nil)

	snap := enabled()
	snap.Cron = "every now and then"
	assert.Error(t, f.plugin.ApplyConfig(snap))
}

func TestApplyConfig_RunOnce(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.OnceDelay = time.Hour })

	snap := config.Snapshot{RunOnce: true, PageSize: 10}
	require.NoError(t, f.plugin.ApplyConfig(snap))

	js, ok := f.sched.Status().Job(OnceJobID)
	require.True(t, ok, "one-shot job registered")
	assert.WithinDuration(t, time.Now().Add(time.Hour), js.NextRunTime, time.Minute)

	assert.Equal(t, 1, f.writer.updates)
	assert.False(t, f.writer.cfg.OnlyOnce, "onlyonce cleared in the persisted config")

	// Re-applying the cleared snapshot keeps the pending run
	snap.RunOnce = false
	require.NoError(t, f.plugin.ApplyConfig(snap))
	_, ok = f.sched.Status().Job(OnceJobID)
	assert.True(t, ok)

	f.plugin.Shutdown()
	_, ok = f.sched.Status().Job(OnceJobID)
	assert.False(t, ok, "shutdown removes pending jobs")
}

func TestApplyConfig_RunOnceScans(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.OnceDelay = 10 * time.Millisecond })
	ctx := context.Background()

	files := testutil.CreateMediaTree(t, f.root, "lib/a.mkv")
	_, err := f.history.RecordTransfer(ctx, domain.TransferRecord{
		Source:      f.path("in/a.mkv"),
		Destination: files[0],
		Files:       []string{f.path("in/a.mkv")},
		Success:     true,
		Status:      true,
	})
	require.NoError(t, err)

	require.NoError(t, f.sched.Start(ctx))
	defer f.sched.Stop()

	require.NoError(t, f.plugin.ApplyConfig(config.Snapshot{RunOnce: true, PageSize: 10}))

	testutil.AssertEventually(t, 5*time.Second, func() bool {
		run, err := f.history.LastScanRun()
		return err == nil && run != nil
	}, "one-shot scan recorded")

	run, err := f.history.LastScanRun()
	require.NoError(t, err)
	assert.Equal(t, TriggerOnce, run.Trigger)
	assert.Equal(t, state.ScanSuccess, run.Status)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, files[0], testutil.ReadLink(t, f.path("in/a.mkv")))
}

func TestRunScan(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.plugin.RunScan(ctx, TriggerManual)
	assert.Error(t, err, "unconfigured plugin")

	testutil.CreateMediaTree(t, f.root, "lib/Show/e1.mkv", "lib/Show/e2.mkv", "in/Show/.keep")
	_, err = f.history.RecordTransfer(ctx, domain.TransferRecord{
		Source:      f.path("in/Show"),
		Destination: f.path("lib/Show"),
		Files:       []string{f.path("in/Show/e1.mkv"), f.path("in/Show/e2.mkv")},
		Success:     true,
		Status:      true,
	})
	require.NoError(t, err)
	_, err = f.history.RecordTransfer(ctx, domain.TransferRecord{
		Source:      f.path("in/missing"),
		Destination: f.path("lib/missing"),
		Files:       []string{f.path("in/missing/x.mkv")},
		Success:     true,
		Status:      true,
	})
	require.NoError(t, err)

	require.NoError(t, f.plugin.ApplyConfig(enabled()))

	summary, err := f.plugin.RunScan(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.Malformed)
	assert.Equal(t, 2, summary.Count(domain.OutcomeCreated))
	assert.Equal(t, f.path("lib/Show/e2.mkv"), testutil.ReadLink(t, f.path("in/Show/e2.mkv")))

	run, err := f.history.LastScanRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, state.ScanSuccess, run.Status)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 1, run.Malformed)

	// The second pass finds everything in place
	summary, err = f.plugin.RunScan(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(domain.OutcomeAlreadyValid))
	assert.Equal(t, 0, summary.Changed())

	assert.Equal(t, 2.0, counterValue(t, f.metrics.Registry(), "revlink_malformed_records_total", nil))
	assert.Equal(t, 2.0, counterValue(t, f.metrics.Registry(), "revlink_scans_total",
		map[string]string{"trigger": TriggerManual, "status": state.ScanSuccess}))
}

func TestRunScan_DryRun(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.DryRun = true })
	ctx := context.Background()

	files := testutil.CreateMediaTree(t, f.root, "lib/a.mkv")
	_, err := f.history.RecordTransfer(ctx, domain.TransferRecord{
		Source:      f.path("in/a.mkv"),
		Destination: files[0],
		Files:       []string{f.path("in/a.mkv")},
		Status:      true,
	})
	require.NoError(t, err)
	require.NoError(t, f.plugin.ApplyConfig(enabled()))

	summary, err := f.plugin.RunScan(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(domain.OutcomeCreated))

	_, err = os.Lstat(f.path("in/a.mkv"))
	assert.True(t, os.IsNotExist(err), "dry run must not create links")

	run, err := f.history.LastScanRun()
	require.NoError(t, err)
	assert.Nil(t, run, "dry runs are not recorded")
}

func TestRunScan_LockContended(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.plugin.ApplyConfig(enabled()))

	holder, err := lock.NewFileLock(filepath.Join(f.root, "data"))
	require.NoError(t, err)
	require.NoError(t, holder.Acquire("cli"))
	defer holder.Release()

	_, err = f.plugin.RunScan(context.Background(), TriggerCron)
	assert.ErrorIs(t, err, domain.ErrScanInProgress)

	run, err := f.history.LastScanRun()
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.Registry(), "revlink_scan_lock_contended_total", nil))
}

func TestRunScan_ReleasesLock(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.plugin.ApplyConfig(enabled()))

	_, err := f.plugin.RunScan(context.Background(), TriggerManual)
	require.NoError(t, err)

	probe, err := lock.NewFileLock(filepath.Join(f.root, "data"))
	require.NoError(t, err)
	assert.False(t, probe.IsLocked())
}

func TestScanStatus(t *testing.T) {
	failed := scanner.Summary{Outcomes: map[domain.Outcome]int{domain.OutcomeFailedIO: 1}}

	tests := []struct {
		name    string
		summary scanner.Summary
		err     error
		want    string
	}{
		{"clean", scanner.Summary{}, nil, state.ScanSuccess},
		{"link failures", failed, nil, state.ScanPartial},
		{"store error", scanner.Summary{}, errors.New("disk I/O error"), state.ScanFailed},
		{"cancelled", failed, context.Canceled, state.ScanCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scanStatus(tt.summary, tt.err))
		})
	}
}
