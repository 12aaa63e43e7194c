package tenant

import (
	"log/slog"

	"conforma/internal/tenant/handler"
	"conforma/internal/tenant/service"
)

// Service exposes tenant and workspace orchestration plus scope resolution.
type Service = service.Service

// Handler wires HTTP endpoints to the tenant service.
type Handler = handler.Handler

// NewService constructs the tenant service with required dependencies.
func NewService(tenants service.TenantStore, workspaces service.WorkspaceStore, opts ...service.Option) *Service {
	return service.New(tenants, workspaces, opts...)
}

// NewHandler constructs an HTTP handler for admin-facing tenant routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
