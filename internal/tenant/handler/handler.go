package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/tenant/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/httputil"
	"conforma/pkg/requestcontext"
)

// Service defines the tenant operations the handler needs.
type Service interface {
	CreateTenant(ctx context.Context, name string) (*models.Tenant, error)
	GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	DeactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	CreateWorkspace(ctx context.Context, tenantID id.TenantID, name string) (*models.Workspace, error)
	ListWorkspaces(ctx context.Context, tenantID id.TenantID) ([]*models.Workspace, error)
}

// Handler wires admin-facing tenant endpoints to the tenant service.
// All routes are expected to sit behind the admin token middleware.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a tenant handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts tenant admin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/tenants", h.HandleCreateTenant)
	r.Get("/admin/tenants", h.HandleListTenants)
	r.Get("/admin/tenants/{tenantID}", h.HandleGetTenant)
	r.Post("/admin/tenants/{tenantID}/deactivate", h.HandleDeactivateTenant)
	r.Post("/admin/tenants/{tenantID}/reactivate", h.HandleReactivateTenant)
	r.Post("/admin/tenants/{tenantID}/workspaces", h.HandleCreateWorkspace)
	r.Get("/admin/tenants/{tenantID}/workspaces", h.HandleListWorkspaces)
}

// HandleCreateTenant handles POST /admin/tenants.
func (h *Handler) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[*CreateTenantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tenant, err := h.service.CreateTenant(ctx, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "tenant created",
		"request_id", requestID,
		"tenant_id", tenant.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromTenant(tenant))
}

// HandleListTenants handles GET /admin/tenants.
func (h *Handler) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.ListTenants(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := TenantListResponse{Tenants: make([]*TenantResponse, 0, len(tenants))}
	for _, t := range tenants {
		resp.Tenants = append(resp.Tenants, FromTenant(t))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetTenant handles GET /admin/tenants/{tenantID}.
func (h *Handler) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDFromPath(w, r)
	if !ok {
		return
	}

	tenant, err := h.service.GetTenant(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTenant(tenant))
}

// HandleDeactivateTenant handles POST /admin/tenants/{tenantID}/deactivate.
func (h *Handler) HandleDeactivateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDFromPath(w, r)
	if !ok {
		return
	}

	tenant, err := h.service.DeactivateTenant(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "tenant deactivated",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenant.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromTenant(tenant))
}

// HandleReactivateTenant handles POST /admin/tenants/{tenantID}/reactivate.
func (h *Handler) HandleReactivateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDFromPath(w, r)
	if !ok {
		return
	}

	tenant, err := h.service.ReactivateTenant(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "tenant reactivated",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenant.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromTenant(tenant))
}

// HandleCreateWorkspace handles POST /admin/tenants/{tenantID}/workspaces.
func (h *Handler) HandleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID, ok := h.tenantIDFromPath(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[*CreateWorkspaceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	workspace, err := h.service.CreateWorkspace(ctx, tenantID, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "workspace created",
		"request_id", requestID,
		"tenant_id", tenantID,
		"workspace_id", workspace.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromWorkspace(workspace))
}

// HandleListWorkspaces handles GET /admin/tenants/{tenantID}/workspaces.
func (h *Handler) HandleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDFromPath(w, r)
	if !ok {
		return
	}

	workspaces, err := h.service.ListWorkspaces(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := WorkspaceListResponse{Workspaces: make([]*WorkspaceResponse, 0, len(workspaces))}
	for _, ws := range workspaces {
		resp.Workspaces = append(resp.Workspaces, FromWorkspace(ws))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) tenantIDFromPath(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "tenant id is not a valid identifier"))
		return id.TenantID{}, false
	}
	return tenantID, true
}
