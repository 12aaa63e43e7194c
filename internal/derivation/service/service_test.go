package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/internal/catalog"
	"conforma/internal/derivation/lock"
	"conforma/internal/isolation"
	"conforma/internal/profile"
	rulesmodels "conforma/internal/rules/models"
	rulesservice "conforma/internal/rules/service"
	rulesstore "conforma/internal/rules/store"
	runmodels "conforma/internal/runlog/models"
	runstore "conforma/internal/runlog/store"
	scopemodels "conforma/internal/scope/models"
	scopestore "conforma/internal/scope/store"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/requestcontext"
)

type fixture struct {
	engine *Service
	rules  *rulesservice.Service
	scope  *scopestore.MemoryStore
	runs   *runstore.MemoryStore
	locker *lock.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	guard := isolation.NewGuard(logger)

	cat := catalog.NewInMemory()
	catalog.SeedReferenceCatalog(cat)

	rules := rulesservice.New(rulesstore.NewMemory(), cat)
	scope := scopestore.NewMemory(guard)
	runs := runstore.NewMemory(guard)
	locker := lock.NewMemory()

	engine := New(rules, scope, runs, locker, WithLogger(logger))
	return &fixture{engine: engine, rules: rules, scope: scope, runs: runs, locker: locker}
}

func testCtx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	return requestcontext.WithActor(ctx, "onboarding")
}

func rule(code string, priority int, cond string, kind catalog.ItemKind, target string, applicability id.Applicability) *rulesmodels.Rule {
	return &rulesmodels.Rule{
		Code:          code,
		Priority:      priority,
		Condition:     json.RawMessage(cond),
		TargetKind:    kind,
		TargetCode:    target,
		Applicability: applicability,
		Status:        rulesmodels.StatusActive,
	}
}

// activateRuleset creates and activates one ruleset version.
func (f *fixture) activateRuleset(t *testing.T, code string, version int, rules []*rulesmodels.Rule) {
	t.Helper()
	_, err := f.rules.CreateDraft(testCtx(), code, version, rules)
	require.NoError(t, err)
	require.NoError(t, f.rules.Activate(testCtx(), code, version))
}

func bankingProfile() *profile.OrganizationProfile {
	return &profile.OrganizationProfile{
		Sector:               "Banking",
		Country:              "SA",
		HostsPaymentCardData: true,
	}
}

func bankingRules() []*rulesmodels.Rule {
	return []*rulesmodels.Rule{
		rule("R1", 5, `{"attr":"sector","op":"eq","value":"Banking"}`,
			catalog.KindBaseline, "SAMA-CSF", id.ApplicabilityMandatory),
		rule("R2", 5, `{"attr":"hosts_payment_card_data","op":"eq","value":true}`,
			catalog.KindBaseline, "PCI-DSS", id.ApplicabilityMandatory),
	}
}

func TestDeriveBankingExample(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())
	scope := isolation.ForTenant(id.NewTenantID())

	result, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
	require.NoError(t, err)

	assert.Equal(t, 2, result.RulesEvaluated)
	assert.Equal(t, 2, result.RulesMatched)
	assert.Equal(t, 2, result.Reconciled.Added)
	assert.False(t, result.NoChanges())

	items, err := f.engine.GetActiveScope(testCtx(), scope)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Sorted by (kind, code): PCI-DSS before SAMA-CSF.
	assert.Equal(t, "PCI-DSS", items[0].Code)
	assert.Equal(t, id.ApplicabilityMandatory, items[0].Applicability)
	require.Len(t, items[0].Reason.Rules, 1)
	assert.Equal(t, "R2", items[0].Reason.Rules[0].Code)
	assert.NotEmpty(t, items[0].Reason.Rules[0].Explanation)

	assert.Equal(t, "SAMA-CSF", items[1].Code)
	assert.Equal(t, id.ApplicabilityMandatory, items[1].Applicability)
	require.Len(t, items[1].Reason.Rules, 1)
	assert.Equal(t, "R1", items[1].Reason.Rules[0].Code)
}

func TestDeriveDeterminism(t *testing.T) {
	// Two independent stores, same ruleset and profile, identical output.
	itemsFrom := func() []*scopemodels.ScopeItem {
		f := newFixture(t)
		f.activateRuleset(t, "KSA-FIN", 1, bankingRules())
		scope := isolation.ForTenant(id.TenantID{0x01})

		_, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
		require.NoError(t, err)
		items, err := f.engine.GetActiveScope(testCtx(), scope)
		require.NoError(t, err)
		return items
	}

	first := itemsFrom()
	second := itemsFrom()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Code, second[i].Code)
		assert.Equal(t, first[i].Applicability, second[i].Applicability)
		assert.True(t, first[i].Reason.Equal(second[i].Reason))
	}
}

func TestDeriveIdempotence(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())
	scope := isolation.ForTenant(id.NewTenantID())

	first, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
	require.NoError(t, err)
	require.False(t, first.NoChanges())

	second, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
	require.NoError(t, err)
	assert.True(t, second.NoChanges())
	assert.Equal(t, 0, second.Reconciled.Added)
	assert.Equal(t, 0, second.Reconciled.Updated)
	assert.Equal(t, 0, second.Reconciled.Deactivated)
	assert.Equal(t, 2, second.Reconciled.Unchanged)
}

func TestDerivePriorityResolution(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "OVERLAP", 1, []*rulesmodels.Rule{
		rule("R-LOW", 10, `{"attr":"sector","op":"eq","value":"Banking"}`,
			catalog.KindPackage, "CLOUD-SEC", id.ApplicabilityRecommended),
		rule("R-HIGH", 20, `{"attr":"country","op":"eq","value":"SA"}`,
			catalog.KindPackage, "CLOUD-SEC", id.ApplicabilityMandatory),
	})
	scope := isolation.ForTenant(id.NewTenantID())

	result, err := f.engine.Derive(testCtx(), scope, "OVERLAP", bankingProfile())
	require.NoError(t, err)
	assert.Equal(t, 2, result.RulesMatched)
	assert.Equal(t, 1, result.Reconciled.Added)

	items, err := f.engine.GetActiveScope(testCtx(), scope)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Higher applicability wins; the reason cites both contributing rules.
	assert.Equal(t, id.ApplicabilityMandatory, items[0].Applicability)
	require.Len(t, items[0].Reason.Rules, 2)
	assert.Equal(t, "R-LOW", items[0].Reason.Rules[0].Code)
	assert.Equal(t, "R-HIGH", items[0].Reason.Rules[1].Code)
}

func TestDeriveApplicabilityTieKeepsEarlierRule(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "TIE", 1, []*rulesmodels.Rule{
		rule("R-FIRST", 10, `{"attr":"sector","op":"eq","value":"Banking"}`,
			catalog.KindTemplate, "ISP-DOC", id.ApplicabilityRecommended),
		rule("R-SECOND", 20, `{"attr":"country","op":"eq","value":"SA"}`,
			catalog.KindTemplate, "ISP-DOC", id.ApplicabilityRecommended),
	})
	scope := isolation.ForTenant(id.NewTenantID())

	_, err := f.engine.Derive(testCtx(), scope, "TIE", bankingProfile())
	require.NoError(t, err)

	items, err := f.engine.GetActiveScope(testCtx(), scope)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id.ApplicabilityRecommended, items[0].Applicability)
	require.Len(t, items[0].Reason.Rules, 2)
	assert.Equal(t, "R-FIRST", items[0].Reason.Rules[0].Code)
}

func TestDeriveDeprecatedRuleDeactivatesItem(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())
	scope := isolation.ForTenant(id.NewTenantID())

	_, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
	require.NoError(t, err)

	// Version 2 deprecates the PCI-DSS rule.
	v2 := bankingRules()
	v2[1].Status = rulesmodels.StatusDeprecated
	f.activateRuleset(t, "KSA-FIN", 2, v2)

	result, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RulesEvaluated, "deprecated rule is excluded from evaluation")
	assert.Equal(t, 1, result.Reconciled.Deactivated)
	assert.Equal(t, 1, result.Reconciled.Unchanged)

	active, err := f.engine.GetActiveScope(testCtx(), scope)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "SAMA-CSF", active[0].Code)

	// The deactivated row is retained, not deleted.
	all, err := f.scope.List(testCtx(), scope)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// History still shows the run that created the item.
	history, err := f.engine.GetHistory(testCtx(), scope, "KSA-FIN", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	versions := []int{history[0].RulesetVersion, history[1].RulesetVersion}
	assert.ElementsMatch(t, []int{1, 2}, versions)
}

func TestDeriveConcurrencyGuard(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())
	scope := isolation.ForTenant(id.NewTenantID())

	release, err := f.locker.Acquire(testCtx(), scope.TenantID(), "KSA-FIN")
	require.NoError(t, err)
	defer release()

	_, err = f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDerivationInProgress))

	// Fail-fast leaves no run record behind.
	history, err := f.engine.GetHistory(testCtx(), scope, "", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	// A different tenant is not blocked.
	other := isolation.ForTenant(id.NewTenantID())
	_, err = f.engine.Derive(testCtx(), other, "KSA-FIN", bankingProfile())
	require.NoError(t, err)
}

func TestDeriveCancellation(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())
	scope := isolation.ForTenant(id.NewTenantID())

	ctx, cancel := context.WithCancel(testCtx())
	cancel()

	_, err := f.engine.Derive(ctx, scope, "KSA-FIN", bankingProfile())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCancelled))

	// The run is recorded Failed with the cancelled kind; scope is untouched.
	history, err := f.engine.GetHistory(testCtx(), scope, "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, runmodels.RunFailed, history[0].Status)
	assert.Equal(t, runmodels.ErrorCancelled, history[0].ErrorKind)

	items, err := f.engine.GetActiveScope(testCtx(), scope)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeriveUnknownRulesetRecordsFailedRun(t *testing.T) {
	f := newFixture(t)
	scope := isolation.ForTenant(id.NewTenantID())

	_, err := f.engine.Derive(testCtx(), scope, "NO-SUCH-RULESET", bankingProfile())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	history, err := f.engine.GetHistory(testCtx(), scope, "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, runmodels.RunFailed, history[0].Status)
	assert.Equal(t, runmodels.ErrorNotFound, history[0].ErrorKind)
}

func TestDeriveSiblingWorkspaces(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())

	tenantID := id.NewTenantID()
	scopeA := isolation.ForWorkspace(tenantID, id.NewWorkspaceID())
	scopeB := isolation.ForWorkspace(tenantID, id.NewWorkspaceID())

	_, err := f.engine.Derive(testCtx(), scopeA, "KSA-FIN", bankingProfile())
	require.NoError(t, err)

	// A second workspace of the same tenant re-derives without tripping the
	// isolation guard: derived scope is tenant-wide, so this is a no-op rerun.
	result, err := f.engine.Derive(testCtx(), scopeB, "KSA-FIN", bankingProfile())
	require.NoError(t, err)
	assert.True(t, result.NoChanges())

	for _, scope := range []isolation.Scope{scopeA, scopeB} {
		items, err := f.engine.GetActiveScope(testCtx(), scope)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	}
}

func TestDeriveTenantIsolation(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())

	tenantA := isolation.ForTenant(id.NewTenantID())
	tenantB := isolation.ForTenant(id.NewTenantID())

	_, err := f.engine.Derive(testCtx(), tenantA, "KSA-FIN", bankingProfile())
	require.NoError(t, err)

	itemsB, err := f.engine.GetActiveScope(testCtx(), tenantB)
	require.NoError(t, err)
	assert.Empty(t, itemsB)

	historyB, err := f.engine.GetHistory(testCtx(), tenantB, "", 0)
	require.NoError(t, err)
	assert.Empty(t, historyB)
}

func TestDeriveProfileUpdateReconciles(t *testing.T) {
	f := newFixture(t)
	f.activateRuleset(t, "KSA-FIN", 1, bankingRules())
	scope := isolation.ForTenant(id.NewTenantID())

	_, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", bankingProfile())
	require.NoError(t, err)

	// Cardholder data moves out; PCI-DSS no longer applies.
	changed := bankingProfile()
	changed.HostsPaymentCardData = false

	result, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", changed)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reconciled.Deactivated)
	assert.Equal(t, 1, result.Reconciled.Unchanged)

	active, err := f.engine.GetActiveScope(testCtx(), scope)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "SAMA-CSF", active[0].Code)
}

func TestDeriveInputValidation(t *testing.T) {
	f := newFixture(t)
	scope := isolation.ForTenant(id.NewTenantID())

	t.Run("rejects system scope", func(t *testing.T) {
		_, err := f.engine.Derive(testCtx(), isolation.SystemScope(), "KSA-FIN", bankingProfile())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("rejects empty ruleset code", func(t *testing.T) {
		_, err := f.engine.Derive(testCtx(), scope, "", bankingProfile())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid profile", func(t *testing.T) {
		_, err := f.engine.Derive(testCtx(), scope, "KSA-FIN", &profile.OrganizationProfile{Country: "SA"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		// Validation failures never open a run record.
		history, histErr := f.engine.GetHistory(testCtx(), scope, "", 0)
		require.NoError(t, histErr)
		assert.Empty(t, history)
	})
}
