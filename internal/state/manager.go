package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/revlink/internal/domain"
)

// DBFileName is the history database file inside the data directory
const DBFileName = "revlink.db"

// Scan run statuses
const (
	ScanSuccess   = "success"
	ScanPartial   = "partial"
	ScanFailed    = "failed"
	ScanCancelled = "cancelled"
)

// Manager handles the transfer history and scan run persistence
type Manager struct {
	db *sql.DB
}

// ScanRun represents one backlog scan
type ScanRun struct {
	ID        string
	Trigger   string // "cron", "once", "manual"
	StartTime time.Time
	EndTime   time.Time
	Status    string // "success", "partial", "failed", "cancelled"
	Records   int
	Malformed int
	Links     int
	Created   int
	Repaired  int
	Skipped   int
	Failed    int
	Error     string
}

// NewManager creates a new state manager
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

// initSchema creates the database schema
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transfer_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		src TEXT NOT NULL,
		dest TEXT NOT NULL,
		files TEXT NOT NULL DEFAULT '[]',
		mode TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL DEFAULT 1,
		status INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transfer_history_status ON transfer_history(status, id);

	CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		trigger TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		records INTEGER DEFAULT 0,
		malformed INTEGER DEFAULT 0,
		links INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		repaired INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_scan_runs_start ON scan_runs(start_time DESC);
	`

	_, err := m.db.Exec(schema)
	return err
}

// RecordTransfer appends a transfer to the history and returns its id
func (m *Manager) RecordTransfer(ctx context.Context, record domain.TransferRecord) (int64, error) {
	if record.Source == "" || record.Destination == "" {
		return 0, fmt.Errorf("%w: source and destination are required", domain.ErrMalformedRecord)
	}

	files := record.Files
	if files == nil {
		files = []string{}
	}
	encoded, err := json.Marshal(files)
	if err != nil {
		return 0, fmt.Errorf("failed to encode file list: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := m.db.ExecContext(ctx, `
		INSERT INTO transfer_history (src, dest, files, mode, success, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.Source, record.Destination, string(encoded), record.Mode, record.Success, record.Status, createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to save transfer record: %w", err)
	}

	return res.LastInsertId()
}

// Count returns the number of transfers with the given status
func (m *Manager) Count(ctx context.Context, status bool) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfer_history WHERE status = ?`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return n, nil
}

// ListByPage returns one 1-based page of transfers with the given status, ordered by id
func (m *Manager) ListByPage(ctx context.Context, status bool, page, pageSize int) ([]domain.TransferRecord, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be at least 1, got %d", page)
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, src, dest, files, mode, success, status, created_at
		FROM transfer_history
		WHERE status = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	return scanTransfers(rows)
}

// ListTransfers returns the most recent transfers of any status, newest first
func (m *Manager) ListTransfers(ctx context.Context, limit int) ([]domain.TransferRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, src, dest, files, mode, success, status, created_at
		FROM transfer_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	return scanTransfers(rows)
}

// scanTransfers reads transfer rows and closes them.
// A row whose file list is not a JSON array is returned with Files nil,
// so expansion reports it as malformed instead of failing the whole page.
func scanTransfers(rows *sql.Rows) ([]domain.TransferRecord, error) {
	defer rows.Close()

	var records []domain.TransferRecord
	for rows.Next() {
		var (
			record    domain.TransferRecord
			files     string
			createdAt sql.NullTime
		)
		if err := rows.Scan(
			&record.ID,
			&record.Source,
			&record.Destination,
			&files,
			&record.Mode,
			&record.Success,
			&record.Status,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(files), &record.Files); err != nil {
			record.Files = nil
		}
		if createdAt.Valid {
			record.CreatedAt = createdAt.Time
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// SaveScanRun records a backlog scan
func (m *Manager) SaveScanRun(run ScanRun) error {
	switch run.Status {
	case ScanSuccess, ScanPartial, ScanFailed, ScanCancelled:
	default:
		return fmt.Errorf("invalid status: %s (must be 'success', 'partial', 'failed' or 'cancelled')", run.Status)
	}
	if run.ID == "" {
		return fmt.Errorf("scan run id cannot be empty")
	}

	_, err := m.db.Exec(`
		INSERT INTO scan_runs (id, trigger, start_time, end_time, status,
			records, malformed, links, created, repaired, skipped, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Trigger, run.StartTime.UTC(), run.EndTime.UTC(), run.Status,
		run.Records, run.Malformed, run.Links, run.Created, run.Repaired, run.Skipped, run.Failed, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save scan run: %w", err)
	}
	return nil
}

// GetScanRuns returns the most recent scan runs, newest first
func (m *Manager) GetScanRuns(limit int) ([]ScanRun, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(`
		SELECT id, trigger, start_time, end_time, status,
			records, malformed, links, created, repaired, skipped, failed, error
		FROM scan_runs
		ORDER BY start_time DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		var run ScanRun
		if err := rows.Scan(
			&run.ID, &run.Trigger, &run.StartTime, &run.EndTime, &run.Status,
			&run.Records, &run.Malformed, &run.Links, &run.Created, &run.Repaired,
			&run.Skipped, &run.Failed, &run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return runs, nil
}

// LastScanRun returns the most recent scan run, or nil when there is none
func (m *Manager) LastScanRun() (*ScanRun, error) {
	runs, err := m.GetScanRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
