package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "conforma/pkg/domain-errors"
)

// CreateTenantRequestSuite tests CreateTenantRequest validation and normalization.
type CreateTenantRequestSuite struct {
	suite.Suite
}

func TestCreateTenantRequestSuite(t *testing.T) {
	suite.Run(t, new(CreateTenantRequestSuite))
}

func (s *CreateTenantRequestSuite) TestValidation() {
	s.Run("valid request passes", func() {
		req := &CreateTenantRequest{Name: "Acme"}
		s.NoError(req.Validate())
	})

	s.Run("name is trimmed", func() {
		req := &CreateTenantRequest{Name: "  Acme  "}
		s.Require().NoError(req.Validate())
		s.Equal("Acme", req.Name)
	})

	s.Run("empty name rejected", func() {
		req := &CreateTenantRequest{Name: "   "}
		err := req.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("name over 128 characters rejected", func() {
		req := &CreateTenantRequest{Name: strings.Repeat("a", 129)}
		err := req.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("name at 128 characters allowed", func() {
		req := &CreateTenantRequest{Name: strings.Repeat("a", 128)}
		s.NoError(req.Validate())
	})
}

// CreateWorkspaceRequestSuite tests CreateWorkspaceRequest validation.
type CreateWorkspaceRequestSuite struct {
	suite.Suite
}

func TestCreateWorkspaceRequestSuite(t *testing.T) {
	suite.Run(t, new(CreateWorkspaceRequestSuite))
}

func (s *CreateWorkspaceRequestSuite) TestValidation() {
	s.Run("valid request passes", func() {
		req := &CreateWorkspaceRequest{Name: "Trading Desk"}
		s.NoError(req.Validate())
	})

	s.Run("empty name rejected", func() {
		req := &CreateWorkspaceRequest{Name: ""}
		err := req.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("name over 128 characters rejected", func() {
		req := &CreateWorkspaceRequest{Name: strings.Repeat("w", 129)}
		err := req.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
