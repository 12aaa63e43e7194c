package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"conforma/internal/catalog"
	"conforma/internal/rules/condition"
	"conforma/internal/rules/metrics"
	"conforma/internal/rules/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type RulesetStore interface {
	Create(ctx context.Context, ruleset *models.Ruleset) error
	Find(ctx context.Context, code string, version int) (*models.Ruleset, error)
	ListVersions(ctx context.Context, code string) ([]*models.Ruleset, error)
	ListActiveVersions(ctx context.Context, code string) ([]*models.Ruleset, error)
	Activate(ctx context.Context, code string, version int, now time.Time) error
	Deprecate(ctx context.Context, code string, version int, now time.Time) error
}

type CatalogReader interface {
	Find(ctx context.Context, kind catalog.ItemKind, code string) (*catalog.Item, error)
}

// Service owns the ruleset lifecycle and produces evaluable rulesets for the
// derivation engine. Rulesets are platform-owned: no tenant scoping applies
// here, tenants only ever consume them through derivation.
type Service struct {
	store   RulesetStore
	catalog CatalogReader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(store RulesetStore, catalog CatalogReader, opts ...Option) *Service {
	s := &Service{store: store, catalog: catalog}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluableRule pairs a rule with its compiled condition.
type EvaluableRule struct {
	Rule     *models.Rule
	Compiled *condition.Compiled
}

// EvaluableRuleset is a fully validated active ruleset: every condition
// compiled, every target resolved against the catalog, rules in evaluation
// order. Construction happens only through LoadActiveRuleset, so downstream
// evaluation cannot hit an authoring fault.
type EvaluableRuleset struct {
	Ruleset *models.Ruleset
	Order   []EvaluableRule
}

// LoadActiveRuleset resolves the single active version of a ruleset code and
// prepares it for evaluation. Exactly one active version may exist; more than
// one is a stored-data integrity fault and is reported, never silently
// resolved.
func (s *Service) LoadActiveRuleset(ctx context.Context, code string) (*EvaluableRuleset, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ruleset code is required")
	}

	versions, err := s.store.ListActiveVersions(ctx, code)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active ruleset")
	}
	switch len(versions) {
	case 0:
		s.recordLoad("not_found")
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no active version of ruleset %q", code)
	case 1:
	default:
		s.recordLoad("integrity_fault")
		s.log(ctx, slog.LevelError, "multiple active ruleset versions",
			"ruleset_code", code, "active_versions", len(versions))
		return nil, dErrors.Newf(dErrors.CodeIntegrity, "ruleset %q has %d active versions", code, len(versions))
	}

	ruleset := versions[0]
	order := ruleset.EvaluationOrder()
	evaluable := make([]EvaluableRule, 0, len(order))
	for _, rule := range order {
		compiled, err := condition.Compile(rule.Condition)
		if err != nil {
			s.recordLoad("invalid_rule")
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidRule,
				"rule "+rule.Code+" has an invalid condition")
		}
		if _, err := s.catalog.Find(ctx, rule.TargetKind, rule.TargetCode); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				s.recordLoad("invalid_rule")
				return nil, dErrors.Newf(dErrors.CodeInvalidRule,
					"rule %s targets unknown %s %q", rule.Code, rule.TargetKind, rule.TargetCode)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve rule target")
		}
		evaluable = append(evaluable, EvaluableRule{Rule: rule, Compiled: compiled})
	}

	s.recordLoad("ok")
	return &EvaluableRuleset{Ruleset: ruleset, Order: evaluable}, nil
}

// CreateDraft validates and stores a new draft ruleset version. Conditions
// are compiled and targets resolved up front so a draft that cannot ever
// activate is rejected at authoring time.
func (s *Service) CreateDraft(ctx context.Context, code string, version int, rules []*models.Rule) (*models.Ruleset, error) {
	ruleset, err := models.NewRuleset(id.NewRulesetID(), code, version, rules, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		return nil, err
	}

	for _, rule := range ruleset.Rules {
		if _, err := condition.Compile(rule.Condition); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidRule,
				"rule "+rule.Code+" has an invalid condition")
		}
		if _, err := s.catalog.Find(ctx, rule.TargetKind, rule.TargetCode); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeInvalidRule,
					"rule %s targets unknown %s %q", rule.Code, rule.TargetKind, rule.TargetCode)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve rule target")
		}
	}

	if err := s.store.Create(ctx, ruleset); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "ruleset %s v%d already exists", code, version)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ruleset")
	}

	s.log(ctx, slog.LevelInfo, "ruleset draft created",
		"ruleset_code", code, "ruleset_version", version, "rule_count", len(rules))
	return ruleset, nil
}

// Activate promotes a draft version to active, deprecating whichever version
// was active before in the same transaction.
func (s *Service) Activate(ctx context.Context, code string, version int) error {
	err := s.store.Activate(ctx, code, version, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Newf(dErrors.CodeNotFound, "ruleset %s v%d not found", code, version)
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.Newf(dErrors.CodeInvariantViolation, "ruleset %s v%d is not a draft", code, version)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate ruleset")
		}
	}
	s.log(ctx, slog.LevelInfo, "ruleset activated", "ruleset_code", code, "ruleset_version", version)
	return nil
}

// Deprecate retires an active version without activating a successor.
// Derivations against the code fail with not-found until a new version
// activates; existing derived scopes stay untouched.
func (s *Service) Deprecate(ctx context.Context, code string, version int) error {
	err := s.store.Deprecate(ctx, code, version, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Newf(dErrors.CodeNotFound, "ruleset %s v%d not found", code, version)
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.Newf(dErrors.CodeInvariantViolation, "ruleset %s v%d is not active", code, version)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deprecate ruleset")
		}
	}
	s.log(ctx, slog.LevelInfo, "ruleset deprecated", "ruleset_code", code, "ruleset_version", version)
	return nil
}

// GetRuleset returns one stored version, rules included.
func (s *Service) GetRuleset(ctx context.Context, code string, version int) (*models.Ruleset, error) {
	ruleset, err := s.store.Find(ctx, code, version)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "ruleset %s v%d not found", code, version)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ruleset")
	}
	return ruleset, nil
}

// ListVersions returns every stored version of a code, oldest first.
func (s *Service) ListVersions(ctx context.Context, code string) ([]*models.Ruleset, error) {
	versions, err := s.store.ListVersions(ctx, code)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ruleset versions")
	}
	return versions, nil
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	s.logger.Log(ctx, level, msg, attributes...)
}

func (s *Service) recordLoad(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRulesetLoad(outcome)
	}
}
