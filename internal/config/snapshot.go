package config

import "slices"

// Snapshot is an immutable view of the settings the engine runs on.
// It is replaced wholesale when the configuration changes.
type Snapshot struct {
	Enabled     bool
	Enforced    bool
	EnabledDirs []string
	Cron        string
	RunOnce     bool

	PageSize             int
	RelaxedDirectoryMode bool
}

// Equal reports whether two snapshots hold the same settings
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Enabled == o.Enabled &&
		s.Enforced == o.Enforced &&
		slices.Equal(s.EnabledDirs, o.EnabledDirs) &&
		s.Cron == o.Cron &&
		s.RunOnce == o.RunOnce &&
		s.PageSize == o.PageSize &&
		s.RelaxedDirectoryMode == o.RelaxedDirectoryMode
}
