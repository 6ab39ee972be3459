// Package scanner replays successful transfer history and reconciles every
// link it describes.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/logger"
	"github.com/Ning0612/revlink/internal/progress"
)

// DefaultPageSize is used when Options.PageSize is not positive
const DefaultPageSize = 50

// HistoryStore is the read side of the transfer history
type HistoryStore interface {
	// Count returns the number of records with the given status
	Count(ctx context.Context, status bool) (int, error)

	// ListByPage returns one 1-based page of records with the given status,
	// ordered by id
	ListByPage(ctx context.Context, status bool, page, pageSize int) ([]domain.TransferRecord, error)
}

// Expander turns a record into link requests
type Expander interface {
	Expand(record domain.TransferRecord) ([]domain.LinkRequest, error)
}

// Linker reconciles one link request
type Linker interface {
	Reconcile(source, destination string) domain.Result
}

// MalformedObserver is notified for every record that cannot be expanded
type MalformedObserver interface {
	ObserveMalformed()
}

// Options configures a scan
type Options struct {
	PageSize int
	Reporter progress.Reporter

	// Observer receives malformed-record notifications (optional)
	Observer MalformedObserver
}

// Summary aggregates one scan
type Summary struct {
	// Records is the number of history records visited
	Records int
	// Malformed is the number of records skipped as unrecognizable
	Malformed int
	// Links is the number of link requests reconciled
	Links int
	// Outcomes counts link results per outcome
	Outcomes map[domain.Outcome]int
}

// Count returns how many links ended with the given outcome
func (s Summary) Count(o domain.Outcome) int {
	return s.Outcomes[o]
}

// Changed returns how many links were created or repaired
func (s Summary) Changed() int {
	return s.Outcomes[domain.OutcomeCreated] + s.Outcomes[domain.OutcomeRepaired]
}

// Skipped returns how many links hit a skip outcome
func (s Summary) Skipped() int {
	n := 0
	for o, c := range s.Outcomes {
		if o.IsSkip() {
			n += c
		}
	}
	return n
}

// Failed returns how many links failed with an I/O error
func (s Summary) Failed() int {
	return s.Outcomes[domain.OutcomeFailedIO]
}

// Scanner walks the history store page by page
type Scanner struct {
	store    HistoryStore
	expander Expander
	linker   Linker
	opts     Options
}

// New creates a scanner
func New(store HistoryStore, expander Expander, linker Linker, opts Options) *Scanner {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	return &Scanner{store: store, expander: expander, linker: linker, opts: opts}
}

// ScanAll runs a full scan and returns its summary
func (s *Scanner) ScanAll(ctx context.Context) (Summary, error) {
	return s.Scan(ctx, nil)
}

// Scan visits every successful record counted at scan start and hands each
// link result to yield. Returning false from yield stops the scan early
// without error. Malformed records are logged and skipped; a store error or
// context cancellation aborts the scan and is returned with the partial summary.
func (s *Scanner) Scan(ctx context.Context, yield func(domain.Result) bool) (Summary, error) {
	summary := Summary{Outcomes: make(map[domain.Outcome]int)}

	total, err := s.store.Count(ctx, true)
	if err != nil {
		return summary, fmt.Errorf("count history: %w", err)
	}
	s.opts.Reporter.SetTotal(total)
	if total == 0 {
		logger.Debug("no transfer history to scan")
		return summary, nil
	}

	pages := (total + s.opts.PageSize - 1) / s.opts.PageSize
	logger.Info("scanning transfer history", "records", total, "pages", pages, "page_size", s.opts.PageSize)

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		records, err := s.store.ListByPage(ctx, true, page, s.opts.PageSize)
		if err != nil {
			return summary, fmt.Errorf("list history page %d: %w", page, err)
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if !s.scanRecord(record, &summary, yield) {
				return summary, nil
			}
		}
	}

	logger.Info("transfer history scan finished",
		"records", summary.Records,
		"malformed", summary.Malformed,
		"links", summary.Links,
		"changed", summary.Changed(),
		"skipped", summary.Skipped(),
		"failed", summary.Failed())
	return summary, nil
}

// scanRecord reconciles one record; false means yield asked to stop
func (s *Scanner) scanRecord(record domain.TransferRecord, summary *Summary, yield func(domain.Result) bool) bool {
	summary.Records++
	s.opts.Reporter.RecordStart(record.ID, record.Source)
	defer s.opts.Reporter.RecordComplete()

	requests, err := s.expander.Expand(record)
	if err != nil {
		summary.Malformed++
		if errors.Is(err, domain.ErrMalformedRecord) {
			logger.Warn("unrecognized history record, skipping", "id", record.ID, "error", err)
		} else {
			logger.Error("history record expansion failed, skipping", "id", record.ID, "error", err)
		}
		if s.opts.Observer != nil {
			s.opts.Observer.ObserveMalformed()
		}
		s.opts.Reporter.Error(err)
		return true
	}

	for _, req := range requests {
		result := s.linker.Reconcile(req.Source, req.Destination)
		summary.Links++
		summary.Outcomes[result.Outcome]++
		s.opts.Reporter.LinkDone(result)
		if yield != nil && !yield(result) {
			return false
		}
	}
	return true
}
