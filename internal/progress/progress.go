package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/revlink/internal/domain"
)

// Reporter handles progress reporting for backlog scans
type Reporter interface {
	// SetTotal sets the number of history records the scan will visit
	SetTotal(totalRecords int)
	// RecordStart begins tracking a history record
	RecordStart(id int64, source string)
	// LinkDone reports the outcome of one link inside the current record
	LinkDone(result domain.Result)
	// RecordComplete marks the current record as done
	RecordComplete()
	// Error reports an error on the current record
	Error(err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type             UpdateType
	RecordID         int64
	CurrentSource    string
	Result           *domain.Result
	RecordsCompleted int
	RecordsTotal     int
	Links            int
	Changed          int
	Failed           int
	Elapsed          time.Duration
	Error            error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateRecordStart UpdateType = iota
	UpdateLink
	UpdateRecordComplete
	UpdateError
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback         Callback
	mu               sync.Mutex
	recordID         int64
	currentSource    string
	recordsTotal     int
	recordsCompleted int
	links            int
	changed          int
	failed           int
	startTime        time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback:  callback,
		startTime: time.Now(),
	}
}

// SetTotal sets the number of records to visit and restarts the clock
func (r *CallbackReporter) SetTotal(totalRecords int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordsTotal = totalRecords
	r.startTime = time.Now()
}

// RecordStart begins tracking a history record
func (r *CallbackReporter) RecordStart(id int64, source string) {
	r.mu.Lock()
	r.recordID = id
	r.currentSource = source
	update := r.snapshot(UpdateRecordStart)
	callback := r.callback
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// LinkDone reports the outcome of one link
func (r *CallbackReporter) LinkDone(result domain.Result) {
	r.mu.Lock()
	r.links++
	switch {
	case result.Outcome == domain.OutcomeFailedIO:
		r.failed++
	case result.Outcome.Mutates():
		r.changed++
	}
	update := r.snapshot(UpdateLink)
	update.Result = &result
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// RecordComplete marks the current record as done
func (r *CallbackReporter) RecordComplete() {
	r.mu.Lock()
	r.recordsCompleted++
	update := r.snapshot(UpdateRecordComplete)
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Error reports an error on the current record
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	update := r.snapshot(UpdateError)
	update.Error = err
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// snapshot must be called with r.mu held
func (r *CallbackReporter) snapshot(t UpdateType) Update {
	return Update{
		Type:             t,
		RecordID:         r.recordID,
		CurrentSource:    r.currentSource,
		RecordsCompleted: r.recordsCompleted,
		RecordsTotal:     r.recordsTotal,
		Links:            r.links,
		Changed:          r.changed,
		Failed:           r.failed,
		Elapsed:          time.Since(r.startTime),
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) SetTotal(totalRecords int)           {}
func (NullReporter) RecordStart(id int64, source string) {}
func (NullReporter) LinkDone(result domain.Result)       {}
func (NullReporter) RecordComplete()                     {}
func (NullReporter) Error(err error)                     {}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
