//go:build integration

package store_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/catalog"
	"conforma/internal/isolation"
	"conforma/internal/scope/models"
	"conforma/internal/scope/store"
	tenantmodels "conforma/internal/tenant/models"
	tenantstore "conforma/internal/tenant/store/tenant"
	id "conforma/pkg/domain"
	"conforma/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tenants  *tenantstore.PostgresStore
	tenantID id.TenantID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.store = store.NewPostgres(s.postgres.DB, isolation.NewGuard(logger))
	s.tenants = tenantstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "scope_items", "derivation_runs", "workspaces", "tenants")
	s.Require().NoError(err)
	s.tenantID = s.seedTenant("Acme Bank")
}

func (s *PostgresStoreSuite) seedTenant(name string) id.TenantID {
	tenant, err := tenantmodels.NewTenant(id.NewTenantID(), name, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.tenants.CreateIfNameAvailable(context.Background(), tenant))
	return tenant.ID
}

func desiredItem(kind catalog.ItemKind, code string, applicability id.Applicability, ruleCodes ...string) *models.ScopeItem {
	reasons := make([]models.ReasonRule, 0, len(ruleCodes))
	for _, rc := range ruleCodes {
		reasons = append(reasons, models.ReasonRule{Code: rc, Explanation: "matched " + rc})
	}
	// Ownership stays unset; the guard stamps it at reconcile time.
	return &models.ScopeItem{
		Kind:          kind,
		Code:          code,
		Applicability: applicability,
		Reason:        models.Reason{Rules: reasons},
	}
}

func provenance(version int) models.Provenance {
	return models.Provenance{
		RulesetCode:    "KSA-FIN",
		RulesetVersion: version,
		RunID:          id.NewRunID(),
		DerivedAt:      time.Now(),
	}
}

func (s *PostgresStoreSuite) TestReconcileAddsAndPersists() {
	ctx := context.Background()
	scope := isolation.ForTenant(s.tenantID)

	result, err := s.store.Reconcile(ctx, scope, []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory, "R1"),
		desiredItem(catalog.KindBaseline, "PCI-DSS", id.ApplicabilityMandatory, "R2"),
	}, provenance(1))
	s.Require().NoError(err)
	s.Equal(2, result.Added)

	items, err := s.store.ListActive(ctx, scope)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal("PCI-DSS", items[0].Code)
	s.Equal(s.tenantID, items[0].TenantID)
	s.Require().Len(items[0].Reason.Rules, 1)
	s.Equal("R2", items[0].Reason.Rules[0].Code)
	s.Equal(1, items[0].RulesetVersion)
}

func (s *PostgresStoreSuite) TestReconcileIdempotent() {
	ctx := context.Background()
	scope := isolation.ForTenant(s.tenantID)
	desired := []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory, "R1"),
	}

	_, err := s.store.Reconcile(ctx, scope, desired, provenance(1))
	s.Require().NoError(err)

	result, err := s.store.Reconcile(ctx, scope, []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory, "R1"),
	}, provenance(1))
	s.Require().NoError(err)
	s.Equal(0, result.Added)
	s.Equal(1, result.Unchanged)
	s.True(result.Empty())
}

func (s *PostgresStoreSuite) TestReconcileUpdatesChangedApplicability() {
	ctx := context.Background()
	scope := isolation.ForTenant(s.tenantID)

	_, err := s.store.Reconcile(ctx, scope, []*models.ScopeItem{
		desiredItem(catalog.KindPackage, "CLOUD-SEC", id.ApplicabilityRecommended, "R-LOW"),
	}, provenance(1))
	s.Require().NoError(err)

	result, err := s.store.Reconcile(ctx, scope, []*models.ScopeItem{
		desiredItem(catalog.KindPackage, "CLOUD-SEC", id.ApplicabilityMandatory, "R-LOW", "R-HIGH"),
	}, provenance(2))
	s.Require().NoError(err)
	s.Equal(1, result.Updated)

	items, err := s.store.ListActive(ctx, scope)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(id.ApplicabilityMandatory, items[0].Applicability)
	s.Len(items[0].Reason.Rules, 2)
	s.Equal(2, items[0].RulesetVersion)
}

func (s *PostgresStoreSuite) TestReconcileDeactivatesMissing() {
	ctx := context.Background()
	scope := isolation.ForTenant(s.tenantID)

	_, err := s.store.Reconcile(ctx, scope, []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory, "R1"),
		desiredItem(catalog.KindBaseline, "PCI-DSS", id.ApplicabilityMandatory, "R2"),
	}, provenance(1))
	s.Require().NoError(err)

	result, err := s.store.Reconcile(ctx, scope, []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory, "R1"),
	}, provenance(2))
	s.Require().NoError(err)
	s.Equal(1, result.Deactivated)
	s.Equal(1, result.Unchanged)

	active, err := s.store.ListActive(ctx, scope)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("SAMA-CSF", active[0].Code)

	// The deactivated row survives for audit.
	all, err := s.store.List(ctx, scope)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresStoreSuite) TestSiblingWorkspaceReconcile() {
	ctx := context.Background()
	scopeA := isolation.ForWorkspace(s.tenantID, id.NewWorkspaceID())
	scopeB := isolation.ForWorkspace(s.tenantID, id.NewWorkspaceID())

	_, err := s.store.Reconcile(ctx, scopeA, []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory, "R1"),
	}, provenance(1))
	s.Require().NoError(err)

	// Derived scope is tenant-wide, so a sibling workspace's reconcile is an
	// ordinary write that replaces the tenant's set, not a violation.
	result, err := s.store.Reconcile(ctx, scopeB, []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "PCI-DSS", id.ApplicabilityMandatory, "R2"),
	}, provenance(1))
	s.Require().NoError(err)
	s.Equal(1, result.Added)
	s.Equal(1, result.Deactivated)

	for _, scope := range []isolation.Scope{scopeA, scopeB, isolation.ForTenant(s.tenantID)} {
		items, err := s.store.ListActive(ctx, scope)
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal("PCI-DSS", items[0].Code)
		s.True(items[0].WorkspaceID.IsNil())
	}
}

func (s *PostgresStoreSuite) TestTenantIsolation() {
	ctx := context.Background()
	otherID := s.seedTenant("Other Corp")

	_, err := s.store.Reconcile(ctx, isolation.ForTenant(s.tenantID), []*models.ScopeItem{
		desiredItem(catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory, "R1"),
	}, provenance(1))
	s.Require().NoError(err)

	items, err := s.store.ListActive(ctx, isolation.ForTenant(otherID))
	s.Require().NoError(err)
	s.Empty(items)
}
