package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"conforma/internal/audit"
	"conforma/internal/isolation"
	tenantmetrics "conforma/internal/tenant/metrics"
	"conforma/internal/tenant/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// TenantStore persists tenant aggregates.
type TenantStore interface {
	CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindByName(ctx context.Context, name string) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	List(ctx context.Context) ([]*models.Tenant, error)
}

// WorkspaceStore persists workspaces.
type WorkspaceStore interface {
	Create(ctx context.Context, workspace *models.Workspace) error
	FindByID(ctx context.Context, workspaceID id.WorkspaceID) (*models.Workspace, error)
	Update(ctx context.Context, workspace *models.Workspace) error
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Workspace, error)
}

// AuditPublisher receives tenant lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates tenant and workspace management, and resolves
// request claims into a validated isolation scope. ResolveScope is the
// single choke point between authentication and tenant-scoped data:
// every tenant-scoped request passes through it, and it fails closed.
type Service struct {
	tenants        TenantStore
	workspaces     WorkspaceStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *tenantmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(tenants TenantStore, workspaces WorkspaceStore, opts ...Option) *Service {
	s := &Service{tenants: tenants, workspaces: workspaces}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateTenant(ctx context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)

	t, err := models.NewTenant(id.NewTenantID(), name, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		return nil, err
	}

	if err := s.tenants.CreateIfNameAvailable(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
	}

	s.emit(ctx, audit.Event{
		TenantID: t.ID,
		Subject:  t.ID.String(),
		Action:   string(audit.EventTenantCreated),
	})
	if s.metrics != nil {
		s.metrics.IncrementTenantCreated()
	}
	return t, nil
}

func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	return tenant, nil
}

// GetTenantByName retrieves a tenant by name (case-insensitive).
func (s *Service) GetTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant name is required")
	}
	tenant, err := s.tenants.FindByName(ctx, name)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	return tenant, nil
}

func (s *Service) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	return tenants, nil
}

// DeactivateTenant transitions a tenant to inactive status. Deactivation
// takes effect immediately: ResolveScope rejects the tenant on the next
// request, with no cascade to workspace or scope rows.
func (s *Service) DeactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err)
	}

	if err := tenant.CanDeactivate(); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant is already inactive")
		}
		return nil, err
	}
	tenant.ApplyDeactivation(requestcontext.Now(ctx))

	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, wrapTenantErr(err)
	}

	s.emit(ctx, audit.Event{
		TenantID: tenant.ID,
		Subject:  tenant.ID.String(),
		Action:   string(audit.EventTenantDeactivated),
		Severity: audit.SeverityWarning,
	})
	return tenant, nil
}

// ReactivateTenant transitions a tenant back to active status.
func (s *Service) ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err)
	}

	if err := tenant.CanReactivate(); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant is already active")
		}
		return nil, err
	}
	tenant.ApplyReactivation(requestcontext.Now(ctx))

	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, wrapTenantErr(err)
	}

	s.emit(ctx, audit.Event{
		TenantID: tenant.ID,
		Subject:  tenant.ID.String(),
		Action:   string(audit.EventTenantReactivated),
	})
	return tenant, nil
}

// CreateWorkspace registers a workspace under an existing active tenant.
func (s *Service) CreateWorkspace(ctx context.Context, tenantID id.TenantID, name string) (*models.Workspace, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	if !tenant.IsActive() {
		return nil, dErrors.New(dErrors.CodeConflict, "tenant is inactive")
	}

	w, err := models.NewWorkspace(id.NewWorkspaceID(), tenantID, strings.TrimSpace(name), requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		return nil, err
	}

	if err := s.workspaces.Create(ctx, w); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "workspace name must be unique within the tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create workspace")
	}

	s.emit(ctx, audit.Event{
		TenantID:    tenantID,
		WorkspaceID: w.ID,
		Subject:     w.ID.String(),
		Action:      string(audit.EventWorkspaceCreated),
	})
	if s.metrics != nil {
		s.metrics.IncrementWorkspaceCreated()
	}
	return w, nil
}

// ListWorkspaces returns the tenant's workspaces ordered by name.
func (s *Service) ListWorkspaces(ctx context.Context, tenantID id.TenantID) ([]*models.Workspace, error) {
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return nil, wrapTenantErr(err)
	}
	list, err := s.workspaces.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list workspaces")
	}
	return list, nil
}

// ResolveScope turns the authenticated claims carried in ctx into a
// validated isolation scope. It fails closed:
//   - a missing or malformed tenant claim is CodeUnauthorized
//   - an unknown tenant is CodeUnauthorized (no existence oracle)
//   - an inactive tenant is CodeForbidden
//   - a workspace claim that is malformed, unknown, inactive, or owned by
//     a different tenant is CodeForbidden
//
// A valid tenant claim without a workspace claim yields a tenant-wide
// scope. System scope is never derived from claims.
func (s *Service) ResolveScope(ctx context.Context) (isolation.Scope, error) {
	start := time.Now()
	scope, err := s.resolveScope(ctx)
	if s.metrics != nil {
		s.metrics.ObserveResolveScope(start)
		switch {
		case err == nil:
			s.metrics.RecordScopeResolution("resolved")
		case dErrors.HasCode(err, dErrors.CodeInternal):
			s.metrics.RecordScopeResolution("error")
		default:
			s.metrics.RecordScopeResolution("rejected")
		}
	}
	return scope, err
}

func (s *Service) resolveScope(ctx context.Context) (isolation.Scope, error) {
	claim := requestcontext.TenantClaim(ctx)
	if claim == "" {
		return isolation.Scope{}, dErrors.New(dErrors.CodeUnauthorized, "tenant claim is required")
	}

	tenantID, err := id.ParseTenantID(claim)
	if err != nil {
		return isolation.Scope{}, dErrors.New(dErrors.CodeUnauthorized, "tenant claim is not a valid identifier")
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Same answer as a malformed claim so callers cannot probe
			// which tenant IDs exist.
			return isolation.Scope{}, dErrors.New(dErrors.CodeUnauthorized, "tenant claim is not recognized")
		}
		return isolation.Scope{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve tenant")
	}
	if !tenant.IsActive() {
		return isolation.Scope{}, dErrors.New(dErrors.CodeForbidden, "tenant is inactive")
	}

	wsClaim := requestcontext.WorkspaceClaim(ctx)
	if wsClaim == "" {
		return isolation.ForTenant(tenantID), nil
	}

	workspaceID, err := id.ParseWorkspaceID(wsClaim)
	if err != nil {
		return isolation.Scope{}, dErrors.New(dErrors.CodeForbidden, "workspace claim is not a valid identifier")
	}

	workspace, err := s.workspaces.FindByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return isolation.Scope{}, dErrors.New(dErrors.CodeForbidden, "workspace claim is not recognized")
		}
		return isolation.Scope{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve workspace")
	}
	if !workspace.BelongsTo(tenantID) {
		s.log(ctx, slog.LevelWarn, "workspace claim crosses tenant boundary",
			"tenant_id", tenantID.String(), "workspace_id", workspaceID.String())
		return isolation.Scope{}, dErrors.New(dErrors.CodeForbidden, "workspace claim is not recognized")
	}
	if !workspace.IsActive() {
		return isolation.Scope{}, dErrors.New(dErrors.CodeForbidden, "workspace is inactive")
	}

	return isolation.ForWorkspace(tenantID, workspaceID), nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Actor(ctx)
	s.log(ctx, slog.LevelInfo, event.Action,
		"tenant_id", event.TenantID.String(), "log_type", "audit")
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.log(ctx, slog.LevelError, "audit emit failed", "action", event.Action, "error", err)
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

func wrapTenantErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "tenant store failure")
}
