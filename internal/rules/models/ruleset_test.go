package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/internal/catalog"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

func validRule(code string, priority int) *Rule {
	return &Rule{
		Code:          code,
		Priority:      priority,
		Condition:     json.RawMessage(`{"attr":"sector","op":"eq","value":"banking"}`),
		TargetKind:    catalog.KindBaseline,
		TargetCode:    "SAMA-CSF",
		Applicability: id.ApplicabilityMandatory,
		Status:        StatusActive,
	}
}

func TestNewRuleset(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("constructs draft with valid rules", func(t *testing.T) {
		rs, err := NewRuleset(id.NewRulesetID(), "sa-financial", 1, []*Rule{validRule("R-001", 10)}, now)
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, rs.Status)
		assert.Equal(t, now, rs.CreatedAt)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		tests := []struct {
			name    string
			code    string
			version int
			rules   []*Rule
		}{
			{"empty code", "", 1, nil},
			{"zero version", "sa-financial", 0, nil},
			{"duplicate rule codes", "sa-financial", 1, []*Rule{validRule("R-001", 10), validRule("R-001", 20)}},
			{"empty rule code", "sa-financial", 1, []*Rule{validRule("", 10)}},
			{"unknown target kind", "sa-financial", 1, func() []*Rule {
				r := validRule("R-001", 10)
				r.TargetKind = "framework"
				return []*Rule{r}
			}()},
			{"empty target code", "sa-financial", 1, func() []*Rule {
				r := validRule("R-001", 10)
				r.TargetCode = ""
				return []*Rule{r}
			}()},
			{"unknown applicability", "sa-financial", 1, func() []*Rule {
				r := validRule("R-001", 10)
				r.Applicability = "critical"
				return []*Rule{r}
			}()},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewRuleset(id.NewRulesetID(), tt.code, tt.version, tt.rules, now)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			})
		}
	})
}

func TestEvaluationOrder(t *testing.T) {
	now := time.Now().UTC()

	t.Run("sorts by priority then code", func(t *testing.T) {
		deprecated := validRule("R-OLD", 5)
		deprecated.Status = StatusDeprecated
		rs, err := NewRuleset(id.NewRulesetID(), "sa-financial", 1, []*Rule{
			validRule("R-020", 20),
			validRule("R-010B", 10),
			validRule("R-010A", 10),
			deprecated,
		}, now)
		require.NoError(t, err)

		order := rs.EvaluationOrder()
		codes := make([]string, len(order))
		for i, r := range order {
			codes[i] = r.Code
		}
		assert.Equal(t, []string{"R-010A", "R-010B", "R-020"}, codes)
	})

	t.Run("is stable across calls", func(t *testing.T) {
		rs, err := NewRuleset(id.NewRulesetID(), "sa-financial", 1, []*Rule{
			validRule("R-B", 10),
			validRule("R-A", 10),
		}, now)
		require.NoError(t, err)
		first := rs.EvaluationOrder()
		second := rs.EvaluationOrder()
		assert.Equal(t, first, second)
	})
}

func TestRulesetLifecycle(t *testing.T) {
	now := time.Now().UTC()
	rs, err := NewRuleset(id.NewRulesetID(), "sa-financial", 1, []*Rule{validRule("R-001", 10)}, now)
	require.NoError(t, err)

	t.Run("draft cannot deprecate", func(t *testing.T) {
		require.Error(t, rs.CanDeprecate())
	})

	t.Run("draft activates", func(t *testing.T) {
		require.NoError(t, rs.CanActivate())
		rs.ApplyActivation(now.Add(time.Minute))
		assert.Equal(t, StatusActive, rs.Status)
	})

	t.Run("active cannot activate again", func(t *testing.T) {
		require.Error(t, rs.CanActivate())
	})

	t.Run("active deprecates", func(t *testing.T) {
		require.NoError(t, rs.CanDeprecate())
		rs.ApplyDeprecation(now.Add(2 * time.Minute))
		assert.Equal(t, StatusDeprecated, rs.Status)
	})

	t.Run("deprecated is terminal", func(t *testing.T) {
		require.Error(t, rs.CanActivate())
		require.Error(t, rs.CanDeprecate())
	})
}
