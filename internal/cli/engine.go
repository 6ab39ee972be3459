package cli

import (
	"fmt"

	"github.com/Ning0612/revlink/internal/adapter/local"
	"github.com/Ning0612/revlink/internal/progress"
	"github.com/Ning0612/revlink/internal/service"
	"github.com/Ning0612/revlink/internal/state"
)

// engineOptions selects what a one-off command needs from the plugin
type engineOptions struct {
	dryRun   bool
	history  bool
	reporter progress.Reporter
}

// engine is a plugin configured from the loaded config, without a scheduler
type engine struct {
	plugin  *service.Plugin
	history *state.Manager
}

func newEngine(opts engineOptions) (*engine, error) {
	e := &engine{}
	deps := service.Deps{
		FS:       local.New(),
		DryRun:   opts.dryRun,
		Reporter: opts.reporter,
	}

	if opts.history {
		mgr, err := state.NewManager(cfg.DataPath())
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		e.history = mgr
		deps.History = mgr
		deps.LockDir = cfg.DataPath()
	}

	plugin, err := service.NewPlugin(deps)
	if err != nil {
		e.Close()
		return nil, err
	}

	// The onlyonce request belongs to the daemon
	snap := cfg.Snapshot()
	snap.RunOnce = false
	if err := plugin.ApplyConfig(snap); err != nil {
		e.Close()
		return nil, fmt.Errorf("apply config: %w", err)
	}
	e.plugin = plugin
	return e, nil
}

func (e *engine) Close() {
	if e.history != nil {
		e.history.Close()
	}
}
