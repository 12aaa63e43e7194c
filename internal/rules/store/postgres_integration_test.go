//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/catalog"
	"conforma/internal/rules/models"
	"conforma/internal/rules/store"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
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
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "rules", "rulesets")
	s.Require().NoError(err)
}

func newTestRuleset(s *PostgresStoreSuite, code string, version int) *models.Ruleset {
	ruleset, err := models.NewRuleset(id.NewRulesetID(), code, version, []*models.Rule{
		{
			Code:          "R1",
			Priority:      5,
			Condition:     json.RawMessage(`{"attr":"sector","op":"eq","value":"Banking"}`),
			TargetKind:    catalog.KindBaseline,
			TargetCode:    "SAMA-CSF",
			Applicability: id.ApplicabilityMandatory,
			Status:        models.StatusActive,
		},
		{
			Code:          "R2",
			Priority:      1,
			Condition:     json.RawMessage(`{"attr":"hosts_payment_card_data","op":"eq","value":true}`),
			TargetKind:    catalog.KindBaseline,
			TargetCode:    "PCI-DSS",
			Applicability: id.ApplicabilityMandatory,
			Status:        models.StatusActive,
		},
	}, time.Now())
	s.Require().NoError(err)
	return ruleset
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundTrip() {
	ctx := context.Background()
	ruleset := newTestRuleset(s, "KSA-FIN", 1)
	s.Require().NoError(s.store.Create(ctx, ruleset))

	found, err := s.store.Find(ctx, "KSA-FIN", 1)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, found.Status)
	s.Require().Len(found.Rules, 2)
	// Rules come back in (priority, code) order.
	s.Equal("R2", found.Rules[0].Code)
	s.Equal("R1", found.Rules[1].Code)
	s.JSONEq(`{"attr":"sector","op":"eq","value":"Banking"}`, string(found.Rules[1].Condition))
}

func (s *PostgresStoreSuite) TestDuplicateVersionConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 1)))

	err := s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 1))
	s.Require().True(errors.Is(err, sentinel.ErrConflict), "expected conflict, got %v", err)
}

func (s *PostgresStoreSuite) TestActivateDeprecatesPredecessor() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 1)))
	s.Require().NoError(s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 2)))

	s.Require().NoError(s.store.Activate(ctx, "KSA-FIN", 1, time.Now()))
	s.Require().NoError(s.store.Activate(ctx, "KSA-FIN", 2, time.Now()))

	v1, err := s.store.Find(ctx, "KSA-FIN", 1)
	s.Require().NoError(err)
	s.Equal(models.StatusDeprecated, v1.Status)

	active, err := s.store.ListActiveVersions(ctx, "KSA-FIN")
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(2, active[0].Version)
}

func (s *PostgresStoreSuite) TestActivateNonDraftInvalidState() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 1)))
	s.Require().NoError(s.store.Activate(ctx, "KSA-FIN", 1, time.Now()))
	s.Require().NoError(s.store.Deprecate(ctx, "KSA-FIN", 1, time.Now()))

	err := s.store.Activate(ctx, "KSA-FIN", 1, time.Now())
	s.Require().True(errors.Is(err, sentinel.ErrInvalidState), "expected invalid state, got %v", err)
}

func (s *PostgresStoreSuite) TestActivateMissingVersionNotFound() {
	ctx := context.Background()

	err := s.store.Activate(ctx, "KSA-FIN", 7, time.Now())
	s.Require().True(errors.Is(err, sentinel.ErrNotFound), "expected not found, got %v", err)
}

func (s *PostgresStoreSuite) TestDeprecateInactiveInvalidState() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 1)))

	err := s.store.Deprecate(ctx, "KSA-FIN", 1, time.Now())
	s.Require().True(errors.Is(err, sentinel.ErrInvalidState), "expected invalid state, got %v", err)
}

func (s *PostgresStoreSuite) TestListVersionsOrdered() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 2)))
	s.Require().NoError(s.store.Create(ctx, newTestRuleset(s, "KSA-FIN", 1)))

	versions, err := s.store.ListVersions(ctx, "KSA-FIN")
	s.Require().NoError(err)
	s.Require().Len(versions, 2)
	s.Equal(1, versions[0].Version)
	s.Equal(2, versions[1].Version)
}
