package handler

import (
	"strings"

	dErrors "conforma/pkg/domain-errors"
)

// CreateTenantRequest is the HTTP request body for POST /admin/tenants.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// Validate normalizes and validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateTenantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if len(r.Name) > 128 {
		return dErrors.New(dErrors.CodeInvalidInput, "name must be 128 characters or less")
	}
	return nil
}

// CreateWorkspaceRequest is the HTTP request body for
// POST /admin/tenants/{tenantID}/workspaces.
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

func (r *CreateWorkspaceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if len(r.Name) > 128 {
		return dErrors.New(dErrors.CodeInvalidInput, "name must be 128 characters or less")
	}
	return nil
}
