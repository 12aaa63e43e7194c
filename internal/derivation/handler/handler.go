package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"conforma/internal/derivation/service"
	"conforma/internal/isolation"
	"conforma/internal/profile"
	runmodels "conforma/internal/runlog/models"
	scopemodels "conforma/internal/scope/models"
	"conforma/pkg/platform/httputil"
	"conforma/pkg/requestcontext"
)

// defaultHistoryLimit caps GET /scope/runs when the caller does not ask for
// a specific page size.
const defaultHistoryLimit = 50

//go:generate mockgen -source=handler.go -destination=mocks/derivation-mocks.go -package=mocks Service

// Service defines the derivation operations the handler needs.
type Service interface {
	Derive(ctx context.Context, scope isolation.Scope, rulesetCode string, prof *profile.OrganizationProfile) (*service.Result, error)
	GetActiveScope(ctx context.Context, scope isolation.Scope) ([]*scopemodels.ScopeItem, error)
	GetHistory(ctx context.Context, scope isolation.Scope, rulesetCode string, limit int) ([]*runmodels.RunRecord, error)
}

// ScopeResolver turns request claims into a validated isolation scope.
type ScopeResolver interface {
	ResolveScope(ctx context.Context) (isolation.Scope, error)
}

// Handler wires the scope endpoints to the derivation engine. Every route
// resolves the caller's scope first and fails closed on any claim problem.
type Handler struct {
	service  Service
	resolver ScopeResolver
	logger   *slog.Logger
}

// New constructs a derivation handler.
func New(service Service, resolver ScopeResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, resolver: resolver, logger: logger}
}

// Register mounts scope endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/scope/derive", h.HandleDerive)
	r.Get("/scope", h.HandleGetScope)
	r.Get("/scope/runs", h.HandleGetRuns)
}

// HandleDerive handles POST /scope/derive.
func (h *Handler) HandleDerive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	scope, err := h.resolver.ResolveScope(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[*DeriveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Derive(ctx, scope, req.RulesetCode, &req.Profile)
	if err != nil {
		h.logger.WarnContext(ctx, "derivation request failed",
			"request_id", requestID,
			"tenant_id", scope.TenantID(),
			"ruleset_code", req.RulesetCode,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleGetScope handles GET /scope.
func (h *Handler) HandleGetScope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := h.resolver.ResolveScope(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	items, err := h.service.GetActiveScope(ctx, scope)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromScopeItems(items))
}

// HandleGetRuns handles GET /scope/runs?ruleset_code=&limit=.
func (h *Handler) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := h.resolver.ResolveScope(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	runs, err := h.service.GetHistory(ctx, scope, r.URL.Query().Get("ruleset_code"), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRuns(runs))
}
