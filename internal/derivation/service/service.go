// Package service implements the scope derivation engine: it evaluates the
// active ruleset against an organization profile and reconciles the tenant's
// derived scope in one atomic unit, recording every run in the execution log.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"conforma/internal/audit"
	"conforma/internal/derivation/lock"
	derivationmetrics "conforma/internal/derivation/metrics"
	"conforma/internal/isolation"
	"conforma/internal/profile"
	rulesservice "conforma/internal/rules/service"
	runmodels "conforma/internal/runlog/models"
	scopemodels "conforma/internal/scope/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
	"conforma/pkg/requestcontext"
)

// RulesetLoader resolves the single active, fully validated ruleset version.
type RulesetLoader interface {
	LoadActiveRuleset(ctx context.Context, code string) (*rulesservice.EvaluableRuleset, error)
}

// ScopeStore is the sole write path into derived scope.
type ScopeStore interface {
	Reconcile(ctx context.Context, scope isolation.Scope, desired []*scopemodels.ScopeItem, prov scopemodels.Provenance) (scopemodels.ReconcileResult, error)
	ListActive(ctx context.Context, scope isolation.Scope) ([]*scopemodels.ScopeItem, error)
	List(ctx context.Context, scope isolation.Scope) ([]*scopemodels.ScopeItem, error)
}

// RunLog records derivation runs.
type RunLog interface {
	Append(ctx context.Context, scope isolation.Scope, record *runmodels.RunRecord) error
	Close(ctx context.Context, scope isolation.Scope, record *runmodels.RunRecord) error
	History(ctx context.Context, scope isolation.Scope, rulesetCode string, limit int) ([]*runmodels.RunRecord, error)
}

// AuditPublisher receives derivation lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Result is the caller-facing outcome of one derivation run. A successful
// run with an empty diff means the stored scope already matched the profile;
// callers should treat that as "no changes needed", not as a failure.
type Result struct {
	RunID          id.RunID                    `json:"run_id"`
	RulesetCode    string                      `json:"ruleset_code"`
	RulesetVersion int                         `json:"ruleset_version"`
	RulesEvaluated int                         `json:"rules_evaluated"`
	RulesMatched   int                         `json:"rules_matched"`
	Reconciled     scopemodels.ReconcileResult `json:"reconciled"`
}

// NoChanges reports a zero-diff reconciliation.
func (r *Result) NoChanges() bool {
	return r.Reconciled.Empty()
}

// Service orchestrates derivation runs.
type Service struct {
	rulesets RulesetLoader
	scope    ScopeStore
	runs     RunLog
	locker   lock.Locker
	tx       txcontext.Runner
	logger   *slog.Logger
	metrics  *derivationmetrics.Metrics
	audit    AuditPublisher
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *derivationmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// WithTxRunner sets the transaction runner wrapping reconciliation.
// Defaults to tx.Noop, which suits the in-memory stores.
func WithTxRunner(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// New constructs the derivation engine.
func New(rulesets RulesetLoader, scopeStore ScopeStore, runs RunLog, locker lock.Locker, opts ...Option) *Service {
	s := &Service{
		rulesets: rulesets,
		scope:    scopeStore,
		runs:     runs,
		locker:   locker,
		tx:       txcontext.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Derive evaluates the active version of rulesetCode against the profile and
// reconciles the caller's scope. The run is serialized per (tenant, ruleset
// code): a concurrent run for the same pair fails fast with
// CodeDerivationInProgress and leaves no trace in the run log.
//
// Every run that gets past the lock is recorded: the Running record is
// written before evaluation so a crash mid-run is visible, and the record is
// closed Succeeded with counts or Failed with an error kind. Failures never
// commit partial scope writes.
func (s *Service) Derive(ctx context.Context, scope isolation.Scope, rulesetCode string, prof *profile.OrganizationProfile) (*Result, error) {
	start := time.Now()

	if scope.IsZero() || scope.IsSystem() {
		return nil, dErrors.New(dErrors.CodeInternal, "derivation requires a tenant scope")
	}
	if rulesetCode == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ruleset code is required")
	}
	if prof == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "organization profile is required")
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, scope.TenantID(), rulesetCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrLocked) {
			if s.metrics != nil {
				s.metrics.RecordLockConflict()
			}
			return nil, dErrors.Newf(dErrors.CodeDerivationInProgress,
				"derivation for ruleset %q is already in progress", rulesetCode)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire derivation lock")
	}
	defer release()

	run := runmodels.NewRun(id.NewRunID(), rulesetCode, requestcontext.Actor(ctx), requestcontext.Now(ctx))
	if err := s.runs.Append(ctx, scope, run); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open run record")
	}

	s.emit(ctx, scope, run, audit.EventDerivationStarted, "")

	result, err := s.derive(ctx, scope, run, rulesetCode, prof)
	if err != nil {
		s.failRun(ctx, scope, run, err)
		if s.metrics != nil {
			s.metrics.RecordRun("failed", start)
		}
		return nil, err
	}

	if err := run.MarkSucceeded(requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.runs.Close(ctx, scope, run); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to close run record")
	}

	outcome := "succeeded"
	if result.NoChanges() {
		outcome = "no_changes"
	}
	if s.metrics != nil {
		s.metrics.RecordRun(outcome, start)
		s.metrics.RecordReconciliation(result.Reconciled.Added, result.Reconciled.Updated, result.Reconciled.Deactivated)
	}
	s.emit(ctx, scope, run, audit.EventDerivationCompleted, outcome)
	s.log(ctx, slog.LevelInfo, "derivation completed",
		"tenant_id", scope.TenantID().String(),
		"ruleset_code", rulesetCode,
		"ruleset_version", result.RulesetVersion,
		"run_id", run.ID.String(),
		"rules_evaluated", result.RulesEvaluated,
		"rules_matched", result.RulesMatched,
		"added", result.Reconciled.Added,
		"updated", result.Reconciled.Updated,
		"deactivated", result.Reconciled.Deactivated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (s *Service) derive(ctx context.Context, scope isolation.Scope, run *runmodels.RunRecord, rulesetCode string, prof *profile.OrganizationProfile) (*Result, error) {
	ruleset, err := s.rulesets.LoadActiveRuleset(ctx, rulesetCode)
	if err != nil {
		return nil, err
	}
	run.RulesetVersion = ruleset.Ruleset.Version

	desired, evaluated, matched, err := s.evaluate(ctx, ruleset, prof)
	if err != nil {
		return nil, err
	}
	run.RulesEvaluated = evaluated
	run.RulesMatched = matched

	prov := scopemodels.Provenance{
		RulesetCode:    ruleset.Ruleset.Code,
		RulesetVersion: ruleset.Ruleset.Version,
		RunID:          run.ID,
		DerivedAt:      requestcontext.Now(ctx),
	}

	var reconciled scopemodels.ReconcileResult
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var txErr error
		reconciled, txErr = s.scope.Reconcile(txCtx, scope, desired, prov)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	run.Added = reconciled.Added
	run.Updated = reconciled.Updated
	run.Deactivated = reconciled.Deactivated
	run.Unchanged = reconciled.Unchanged

	return &Result{
		RunID:          run.ID,
		RulesetCode:    ruleset.Ruleset.Code,
		RulesetVersion: ruleset.Ruleset.Version,
		RulesEvaluated: evaluated,
		RulesMatched:   matched,
		Reconciled:     reconciled,
	}, nil
}

// evaluate walks the pre-sorted rules and stages one candidate per target
// (kind, code). When several rules hit the same target, the highest
// applicability wins and a tie keeps the earlier-evaluated rule's level; the
// reason cites every contributing rule either way.
func (s *Service) evaluate(ctx context.Context, ruleset *rulesservice.EvaluableRuleset, prof *profile.OrganizationProfile) ([]*scopemodels.ScopeItem, int, int, error) {
	attrs := prof.Attributes()
	staged := make(map[scopemodels.ItemKey]*scopemodels.ScopeItem)

	evaluated := 0
	matched := 0
	for _, er := range ruleset.Order {
		if err := ctx.Err(); err != nil {
			return nil, evaluated, matched, dErrors.Wrap(err, dErrors.CodeCancelled, "derivation cancelled")
		}

		ok, explanation, err := er.Compiled.Evaluate(attrs)
		evaluated++
		if err != nil {
			return nil, evaluated, matched, dErrors.Wrap(err, dErrors.CodeInvalidRule,
				"rule "+er.Rule.Code+" failed to evaluate")
		}
		if !ok {
			continue
		}
		matched++

		key := scopemodels.ItemKey{Kind: er.Rule.TargetKind, Code: er.Rule.TargetCode}
		reason := scopemodels.ReasonRule{Code: er.Rule.Code, Explanation: explanation}

		item, exists := staged[key]
		if !exists {
			// Ownership is left unset; the isolation guard stamps the
			// caller's tenant and workspace at reconcile time.
			staged[key] = &scopemodels.ScopeItem{
				Kind:          er.Rule.TargetKind,
				Code:          er.Rule.TargetCode,
				Applicability: er.Rule.Applicability,
				Reason:        scopemodels.Reason{Rules: []scopemodels.ReasonRule{reason}},
			}
			continue
		}
		item.Reason.Rules = append(item.Reason.Rules, reason)
		if er.Rule.Applicability.Outranks(item.Applicability) {
			item.Applicability = er.Rule.Applicability
		}
	}

	desired := make([]*scopemodels.ScopeItem, 0, len(staged))
	for _, item := range staged {
		desired = append(desired, item)
	}
	sort.Slice(desired, func(i, j int) bool {
		if desired[i].Kind != desired[j].Kind {
			return desired[i].Kind < desired[j].Kind
		}
		return desired[i].Code < desired[j].Code
	})
	return desired, evaluated, matched, nil
}

// GetActiveScope returns the caller's active scope items.
func (s *Service) GetActiveScope(ctx context.Context, scope isolation.Scope) ([]*scopemodels.ScopeItem, error) {
	if scope.IsZero() {
		return nil, dErrors.New(dErrors.CodeInternal, "scope reads require a resolved scope")
	}
	items, err := s.scope.ListActive(ctx, scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load scope")
	}
	return items, nil
}

// GetHistory returns the caller's derivation runs, newest first. rulesetCode
// narrows the history when non-empty; limit <= 0 means no limit.
func (s *Service) GetHistory(ctx context.Context, scope isolation.Scope, rulesetCode string, limit int) ([]*runmodels.RunRecord, error) {
	if scope.IsZero() {
		return nil, dErrors.New(dErrors.CodeInternal, "history reads require a resolved scope")
	}
	runs, err := s.runs.History(ctx, scope, rulesetCode, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load run history")
	}
	return runs, nil
}

// failRun closes the run record as Failed. The original error is returned to
// the caller; close failures are logged and swallowed so they cannot mask it.
func (s *Service) failRun(ctx context.Context, scope isolation.Scope, run *runmodels.RunRecord, cause error) {
	kind := classify(cause)
	// Closing must proceed even when the caller's context is already dead.
	closeCtx := ctx
	if ctx.Err() != nil {
		closeCtx = context.WithoutCancel(ctx)
	}

	if err := run.MarkFailed(kind, dErrors.MessageOf(cause), requestcontext.Now(ctx)); err != nil {
		s.log(ctx, slog.LevelError, "failed run already terminal", "run_id", run.ID.String(), "error", err)
		return
	}
	if err := s.runs.Close(closeCtx, scope, run); err != nil {
		s.log(ctx, slog.LevelError, "failed to close failed run", "run_id", run.ID.String(), "error", err)
	}
	s.emit(closeCtx, scope, run, audit.EventDerivationFailed, string(kind))
	s.log(ctx, slog.LevelWarn, "derivation failed",
		"tenant_id", scope.TenantID().String(),
		"ruleset_code", run.RulesetCode,
		"run_id", run.ID.String(),
		"error_kind", string(kind),
		"error", cause,
	)
}

// classify maps a failure to the run log's error taxonomy.
func classify(err error) runmodels.ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		dErrors.HasCode(err, dErrors.CodeCancelled), dErrors.HasCode(err, dErrors.CodeTimeout):
		return runmodels.ErrorCancelled
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return runmodels.ErrorNotFound
	case dErrors.HasCode(err, dErrors.CodeInvalidRule):
		return runmodels.ErrorInvalidRule
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return runmodels.ErrorIntegrity
	case dErrors.HasCode(err, dErrors.CodeConflict), dErrors.HasCode(err, dErrors.CodeDerivationInProgress):
		return runmodels.ErrorConflict
	default:
		return runmodels.ErrorInternal
	}
}

func (s *Service) emit(ctx context.Context, scope isolation.Scope, run *runmodels.RunRecord, action audit.AuditEvent, decision string) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		TenantID:    scope.TenantID(),
		Subject:     scope.TenantID().String(),
		Action:      string(action),
		Decision:    decision,
		RunID:       run.ID.String(),
		RulesetCode: run.RulesetCode,
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx),
	}
	if wsID, ok := scope.WorkspaceID(); ok {
		event.WorkspaceID = wsID
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.log(ctx, slog.LevelError, "audit emit failed", "action", string(action), "error", err)
	}
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.Log(ctx, level, msg, args...)
}
