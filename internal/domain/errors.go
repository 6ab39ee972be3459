package domain

import "errors"

// Filesystem errors - 檔案系統層錯誤
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrAlreadyExists indicates something already occupies the path
	ErrAlreadyExists = errors.New("path already exists")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotSymlink indicates expected a symbolic link
	ErrNotSymlink = errors.New("not a symbolic link")

	// ErrSymlinkUnsupported indicates the filesystem cannot hold symbolic links
	ErrSymlinkUnsupported = errors.New("filesystem does not support symbolic links")
)

// Reconciliation skip reasons - 反向連結跳過原因
var (
	// ErrOutOfScope indicates the source directory is not enabled
	ErrOutOfScope = errors.New("source outside enabled directories")

	// ErrDestinationMissing indicates the destination is absent or not a regular file
	ErrDestinationMissing = errors.New("destination missing")

	// ErrCycleDetected indicates the destination already links back to the source
	ErrCycleDetected = errors.New("destination links back to source")

	// ErrConflictNotEnforced indicates the source is occupied and enforcement is off
	ErrConflictNotEnforced = errors.New("source occupied, enforcement off")
)

// Upstream data errors - 上游資料格式錯誤
var (
	// ErrMalformedRecord indicates a transfer history record of unrecognized shape
	ErrMalformedRecord = errors.New("malformed transfer record")

	// ErrMalformedEvent indicates a transfer-complete event whose file lists do not pair up
	ErrMalformedEvent = errors.New("malformed transfer event")

	// ErrTransferFailed indicates the transfer reported by an event did not succeed
	ErrTransferFailed = errors.New("transfer did not succeed")
)

// Scan errors - 掃描錯誤
var (
	// ErrScanInProgress indicates another scan holds the scan lock
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrPluginDisabled indicates the reconciler is switched off by configuration
	ErrPluginDisabled = errors.New("reverse linking is disabled")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
