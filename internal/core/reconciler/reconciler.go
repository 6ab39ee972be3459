// Package reconciler decides and applies the reverse link for a single
// (source, destination) pair.
//
// Every request passes the same gates in order: scope, destination
// existence, cycle protection, then the existing-source branch. The first
// gate that matches determines the outcome. Planning never mutates the
// filesystem; applying performs at most one logical change (create the
// link, or replace what occupies the source with the link).
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Ning0612/revlink/internal/adapter"
	"github.com/Ning0612/revlink/internal/core/scope"
	"github.com/Ning0612/revlink/internal/core/validator"
	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/logger"
)

// Observer is notified of every final outcome
type Observer interface {
	ObserveOutcome(outcome domain.Outcome)
}

// Options configures a Reconciler
type Options struct {
	// Enforced permits replacing a conflicting object at the source
	Enforced bool

	// DryRun plans outcomes without touching the filesystem
	DryRun bool

	// Observer receives outcomes (optional)
	Observer Observer
}

// Reconciler is the reverse-link decision and action engine
type Reconciler struct {
	fs        adapter.Adapter
	scope     *scope.Filter
	validator *validator.Validator
	opts      Options
}

// New creates a reconciler. A nil filter puts every directory in scope.
func New(fs adapter.Adapter, filter *scope.Filter, opts Options) *Reconciler {
	if filter == nil {
		filter = scope.New(nil)
	}
	return &Reconciler{
		fs:        fs,
		scope:     filter,
		validator: validator.New(fs),
		opts:      opts,
	}
}

// Reconcile plans and applies the reverse link for one pair
func (r *Reconciler) Reconcile(source, destination string) domain.Result {
	return r.Apply(r.Plan(source, destination))
}

// ReconcileAll reconciles every request independently. A failure on one
// request never stops the others; only context cancellation ends the batch
// early, in which case the results gathered so far are returned.
func (r *Reconciler) ReconcileAll(ctx context.Context, requests []domain.LinkRequest) ([]domain.Result, error) {
	results := make([]domain.Result, 0, len(requests))
	for _, req := range requests {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		results = append(results, r.Reconcile(req.Source, req.Destination))
	}
	return results, nil
}

// Plan evaluates the gates for a pair without mutating anything
func (r *Reconciler) Plan(source, destination string) domain.LinkAction {
	action := domain.LinkAction{
		Type:    domain.ActionNone,
		Request: domain.LinkRequest{Source: source, Destination: destination},
	}

	src, err := filepath.Abs(source)
	if err != nil {
		return failed(action, fmt.Errorf("absolute source path: %w", err))
	}
	dst, err := filepath.Abs(destination)
	if err != nil {
		return failed(action, fmt.Errorf("absolute destination path: %w", err))
	}
	action.Request = domain.LinkRequest{Source: src, Destination: dst}

	if !r.scope.InScope(filepath.Dir(src)) {
		return skip(action, domain.OutcomeSkippedOutOfScope, "source directory is not enabled")
	}

	dstInfo, err := r.fs.Stat(dst)
	if err != nil {
		return skip(action, domain.OutcomeSkippedDestinationMissing, "destination does not exist")
	}
	if !dstInfo.IsFile() {
		return skip(action, domain.OutcomeSkippedDestinationMissing,
			fmt.Sprintf("destination is a %s, not a regular file", dstInfo.Type))
	}

	if dstLink, err := r.fs.Lstat(dst); err == nil && dstLink.IsSymlink() && r.validator.PointsAt(dst, src) {
		return skip(action, domain.OutcomeSkippedCycle, "destination links back to source")
	}
	if r.samePath(src, dst) {
		return skip(action, domain.OutcomeSkippedCycle, "source and destination are the same file")
	}

	if _, err := r.fs.Lstat(src); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return failed(action, err)
		}
		action.Type = domain.ActionCreate
		action.Outcome = domain.OutcomeCreated
		action.Reason = "source is free"
		return action
	}

	if r.validator.IsValidLink(src, dst) {
		return skip(action, domain.OutcomeAlreadyValid, "source already links to destination")
	}

	if !r.opts.Enforced {
		return skip(action, domain.OutcomeSkippedConflictNotEnforced,
			"source is occupied and enforcement is off")
	}

	action.Type = domain.ActionReplace
	action.Outcome = domain.OutcomeRepaired
	action.Reason = "source is occupied and enforcement is on"
	return action
}

// Apply performs a planned action and reports the final result
func (r *Reconciler) Apply(action domain.LinkAction) domain.Result {
	result := domain.Result{
		Request: action.Request,
		Outcome: action.Outcome,
		Err:     action.Err,
		DryRun:  r.opts.DryRun && action.Type != domain.ActionNone,
	}

	if action.Err == nil && !result.DryRun {
		src, dst := action.Request.Source, action.Request.Destination
		var err error
		switch action.Type {
		case domain.ActionCreate:
			err = r.create(src, dst)
		case domain.ActionReplace:
			err = r.replace(src, dst)
		}
		if err != nil {
			result.Outcome = domain.OutcomeFailedIO
			result.Err = err
		}
	}

	r.report(action, result)
	return result
}

// create makes sure the parent exists, then links source to destination
func (r *Reconciler) create(src, dst string) error {
	if err := r.fs.MkdirAll(filepath.Dir(src)); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	if err := r.fs.Symlink(dst, src); err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// replace removes what occupies source and links it to destination
func (r *Reconciler) replace(src, dst string) error {
	if err := r.fs.Remove(src); err != nil {
		return fmt.Errorf("remove conflicting source: %w", err)
	}
	if err := r.fs.Symlink(dst, src); err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// samePath reports whether source names the destination file itself,
// directly or through symlinked parent directories. A link at source is
// never the same path: it is either the expected link or a conflict.
func (r *Reconciler) samePath(src, dst string) bool {
	if src == dst {
		return true
	}
	info, err := r.fs.Lstat(src)
	if err != nil || info.IsSymlink() {
		return false
	}
	resolvedSrc, err := r.fs.Resolve(src)
	if err != nil {
		return false
	}
	resolvedDst, err := r.fs.Resolve(dst)
	return err == nil && resolvedSrc == resolvedDst
}

// report logs the result and notifies the observer
func (r *Reconciler) report(action domain.LinkAction, result domain.Result) {
	log := logger.With(
		"source", result.Request.Source,
		"destination", result.Request.Destination,
		"outcome", string(result.Outcome),
	)
	if result.DryRun {
		log = log.With("dry_run", true)
	}

	switch result.Outcome {
	case domain.OutcomeCreated:
		log.Info("reverse link created")
	case domain.OutcomeRepaired:
		log.Info("conflicting source replaced by reverse link")
	case domain.OutcomeAlreadyValid:
		log.Info("reverse link already in place")
	case domain.OutcomeSkippedOutOfScope:
		log.Debug("source outside enabled directories, skipping")
	case domain.OutcomeSkippedDestinationMissing:
		log.Warn("destination missing, skipping", "reason", action.Reason)
	case domain.OutcomeSkippedCycle:
		log.Warn("destination links back to source, skipping to avoid a cycle")
	case domain.OutcomeSkippedConflictNotEnforced:
		log.Warn("source exists and is not the expected link, enforcement off, skipping")
	case domain.OutcomeFailedIO:
		log.Error("reverse link failed", "error", result.Err)
	}

	if r.opts.Observer != nil {
		r.opts.Observer.ObserveOutcome(result.Outcome)
	}
}

func skip(action domain.LinkAction, outcome domain.Outcome, reason string) domain.LinkAction {
	action.Type = domain.ActionNone
	action.Outcome = outcome
	action.Reason = reason
	return action
}

func failed(action domain.LinkAction, err error) domain.LinkAction {
	action.Type = domain.ActionNone
	action.Outcome = domain.OutcomeFailedIO
	action.Reason = "filesystem failure while planning"
	action.Err = err
	return action
}
