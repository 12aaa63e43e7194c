package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"conforma/internal/rules/models"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/httputil"
	"conforma/pkg/requestcontext"
)

// Service defines the ruleset lifecycle operations the handler needs.
type Service interface {
	CreateDraft(ctx context.Context, code string, version int, rules []*models.Rule) (*models.Ruleset, error)
	Activate(ctx context.Context, code string, version int) error
	Deprecate(ctx context.Context, code string, version int) error
	GetRuleset(ctx context.Context, code string, version int) (*models.Ruleset, error)
	ListVersions(ctx context.Context, code string) ([]*models.Ruleset, error)
}

// Handler wires admin-facing ruleset endpoints to the rules service.
// All routes are expected to sit behind the admin token middleware.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ruleset admin handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ruleset admin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/rulesets", h.HandleCreateDraft)
	r.Get("/admin/rulesets/{code}", h.HandleListVersions)
	r.Get("/admin/rulesets/{code}/{version}", h.HandleGetRuleset)
	r.Post("/admin/rulesets/{code}/{version}/activate", h.HandleActivate)
	r.Post("/admin/rulesets/{code}/{version}/deprecate", h.HandleDeprecate)
}

// HandleCreateDraft handles POST /admin/rulesets.
func (h *Handler) HandleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[*CreateRulesetRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ruleset, err := h.service.CreateDraft(ctx, req.Code, req.Version, req.ToModels())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ruleset draft created",
		"request_id", requestID,
		"ruleset_code", ruleset.Code,
		"ruleset_version", ruleset.Version,
		"rules", len(ruleset.Rules),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRuleset(ruleset))
}

// HandleListVersions handles GET /admin/rulesets/{code}.
func (h *Handler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	code, ok := codeFromPath(w, r)
	if !ok {
		return
	}

	versions, err := h.service.ListVersions(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRulesets(versions))
}

// HandleGetRuleset handles GET /admin/rulesets/{code}/{version}.
func (h *Handler) HandleGetRuleset(w http.ResponseWriter, r *http.Request) {
	code, version, ok := versionFromPath(w, r)
	if !ok {
		return
	}

	ruleset, err := h.service.GetRuleset(r.Context(), code, version)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRuleset(ruleset))
}

// HandleActivate handles POST /admin/rulesets/{code}/{version}/activate.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, version, ok := versionFromPath(w, r)
	if !ok {
		return
	}

	if err := h.service.Activate(ctx, code, version); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ruleset activated",
		"request_id", requestcontext.RequestID(ctx),
		"ruleset_code", code,
		"ruleset_version", version,
	)
	ruleset, err := h.service.GetRuleset(ctx, code, version)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRuleset(ruleset))
}

// HandleDeprecate handles POST /admin/rulesets/{code}/{version}/deprecate.
func (h *Handler) HandleDeprecate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, version, ok := versionFromPath(w, r)
	if !ok {
		return
	}

	if err := h.service.Deprecate(ctx, code, version); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ruleset deprecated",
		"request_id", requestcontext.RequestID(ctx),
		"ruleset_code", code,
		"ruleset_version", version,
	)
	ruleset, err := h.service.GetRuleset(ctx, code, version)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRuleset(ruleset))
}

func codeFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ruleset code is required"))
		return "", false
	}
	return code, true
}

func versionFromPath(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	code, ok := codeFromPath(w, r)
	if !ok {
		return "", 0, false
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ruleset version must be a positive integer"))
		return "", 0, false
	}
	return code, version, true
}
