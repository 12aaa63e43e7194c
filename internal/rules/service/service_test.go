package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/internal/catalog"
	"conforma/internal/rules/models"
	"conforma/internal/rules/store"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/requestcontext"
)

func newService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	cat := catalog.NewInMemory()
	catalog.SeedReferenceCatalog(cat)
	rulesets := store.NewMemory()
	return New(rulesets, cat), rulesets
}

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
}

func rule(code string, priority int, cond string) *models.Rule {
	return &models.Rule{
		Code:          code,
		Priority:      priority,
		Condition:     json.RawMessage(cond),
		TargetKind:    catalog.KindBaseline,
		TargetCode:    "SAMA-CSF",
		Applicability: id.ApplicabilityMandatory,
		Status:        models.StatusActive,
	}
}

func TestCreateDraft(t *testing.T) {
	ctx := testCtx()

	t.Run("creates a valid draft", func(t *testing.T) {
		svc, _ := newService(t)
		ruleset, err := svc.CreateDraft(ctx, "sa-financial", 1, []*models.Rule{
			rule("R-001", 10, `{"attr":"sector","op":"eq","value":"banking"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusDraft, ruleset.Status)
	})

	t.Run("rejects a rule whose condition does not compile", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateDraft(ctx, "sa-financial", 1, []*models.Rule{
			rule("R-001", 10, `{"attr":"shoe_size","op":"eq","value":"42"}`),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRule))
	})

	t.Run("rejects a rule targeting an unknown catalog item", func(t *testing.T) {
		svc, _ := newService(t)
		bad := rule("R-001", 10, `{"attr":"sector","op":"eq","value":"banking"}`)
		bad.TargetCode = "NO-SUCH-BASELINE"
		_, err := svc.CreateDraft(ctx, "sa-financial", 1, []*models.Rule{bad})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRule))
	})

	t.Run("rejects duplicate version", func(t *testing.T) {
		svc, _ := newService(t)
		rules := []*models.Rule{rule("R-001", 10, `{"attr":"sector","op":"eq","value":"banking"}`)}
		_, err := svc.CreateDraft(ctx, "sa-financial", 1, rules)
		require.NoError(t, err)
		_, err = svc.CreateDraft(ctx, "sa-financial", 1, rules)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("maps invariant violations to invalid input", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateDraft(ctx, "", 1, nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestLoadActiveRuleset(t *testing.T) {
	ctx := testCtx()

	t.Run("loads the single active version in evaluation order", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateDraft(ctx, "sa-financial", 1, []*models.Rule{
			rule("R-020", 20, `{"attr":"hosts_payment_card_data","op":"eq","value":true}`),
			rule("R-010", 10, `{"attr":"sector","op":"eq","value":"banking"}`),
		})
		require.NoError(t, err)
		require.NoError(t, svc.Activate(ctx, "sa-financial", 1))

		evaluable, err := svc.LoadActiveRuleset(ctx, "sa-financial")
		require.NoError(t, err)
		require.Len(t, evaluable.Order, 2)
		assert.Equal(t, "R-010", evaluable.Order[0].Rule.Code)
		assert.Equal(t, "R-020", evaluable.Order[1].Rule.Code)
		assert.NotNil(t, evaluable.Order[0].Compiled)
	})

	t.Run("returns not found when no version is active", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateDraft(ctx, "dormant", 1, []*models.Rule{
			rule("R-001", 10, `{"attr":"sector","op":"eq","value":"banking"}`),
		})
		require.NoError(t, err)

		_, err = svc.LoadActiveRuleset(ctx, "dormant")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("reports multiple active versions as an integrity fault", func(t *testing.T) {
		// The store's activation path cannot produce this state, so a stub
		// stands in for a corrupted database.
		now := requestcontext.Now(ctx)
		v1, err := models.NewRuleset(id.NewRulesetID(), "corrupt", 1, nil, now)
		require.NoError(t, err)
		v2, err := models.NewRuleset(id.NewRulesetID(), "corrupt", 2, nil, now)
		require.NoError(t, err)
		v1.ApplyActivation(now)
		v2.ApplyActivation(now)

		cat := catalog.NewInMemory()
		catalog.SeedReferenceCatalog(cat)
		svc := New(&stubStore{active: []*models.Ruleset{v1, v2}}, cat)

		_, err = svc.LoadActiveRuleset(ctx, "corrupt")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
	})

	t.Run("excludes deprecated rules from evaluation order", func(t *testing.T) {
		svc, _ := newService(t)
		retired := rule("R-RETIRED", 5, `{"attr":"sector","op":"eq","value":"banking"}`)
		retired.Status = models.StatusDeprecated
		_, err := svc.CreateDraft(ctx, "pruned", 1, []*models.Rule{
			retired,
			rule("R-LIVE", 10, `{"attr":"sector","op":"eq","value":"banking"}`),
		})
		require.NoError(t, err)
		require.NoError(t, svc.Activate(ctx, "pruned", 1))

		evaluable, err := svc.LoadActiveRuleset(ctx, "pruned")
		require.NoError(t, err)
		require.Len(t, evaluable.Order, 1)
		assert.Equal(t, "R-LIVE", evaluable.Order[0].Rule.Code)
	})

	t.Run("requires a code", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.LoadActiveRuleset(ctx, "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// stubStore returns canned active versions; other operations are unused in
// the tests that employ it.
type stubStore struct {
	RulesetStore
	active []*models.Ruleset
}

func (s *stubStore) ListActiveVersions(_ context.Context, _ string) ([]*models.Ruleset, error) {
	return s.active, nil
}

func TestLifecycle(t *testing.T) {
	ctx := testCtx()

	t.Run("deprecate retires the active version", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateDraft(ctx, "sunset", 1, []*models.Rule{
			rule("R-001", 10, `{"attr":"sector","op":"eq","value":"banking"}`),
		})
		require.NoError(t, err)
		require.NoError(t, svc.Activate(ctx, "sunset", 1))
		require.NoError(t, svc.Deprecate(ctx, "sunset", 1))

		_, err = svc.LoadActiveRuleset(ctx, "sunset")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("activate of unknown version is not found", func(t *testing.T) {
		svc, _ := newService(t)
		err := svc.Activate(ctx, "ghost", 1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("activate of a non-draft is an invariant violation", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.CreateDraft(ctx, "twice", 1, []*models.Rule{
			rule("R-001", 10, `{"attr":"sector","op":"eq","value":"banking"}`),
		})
		require.NoError(t, err)
		require.NoError(t, svc.Activate(ctx, "twice", 1))
		err = svc.Activate(ctx, "twice", 1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}
