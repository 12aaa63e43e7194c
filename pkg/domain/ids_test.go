package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "conforma/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTenantID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseTenantID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseTenantID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, TenantID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	tenantID := TenantID(uuid.New())
	workspaceID := WorkspaceID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ TenantID = workspaceID   // compile error
	// var _ WorkspaceID = tenantID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(tenantID), uuid.UUID(workspaceID))
}

// TestParseID_SecurityInvariants validates security-critical parsing rules.
//
// These are trust boundary invariants - parsing must reject attack vectors
// at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE tenant_baselines;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTenantID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestTenantIsolation_CrossTenantAccessDenied encodes the "never again" invariant:
// "Actor from tenant A must never access resources from tenant B"
//
// Actual enforcement lives in the isolation layer, but typed IDs ensure tenant
// context is never accidentally omitted from a call path.
func TestTenantIsolation_CrossTenantAccessDenied(t *testing.T) {
	tenantA := TenantID(uuid.New())
	tenantB := TenantID(uuid.New())

	// Typed IDs make cross-tenant comparison explicit
	assert.NotEqual(t, tenantA, tenantB, "Different tenants must have different IDs")
	assert.NotEqual(t, uuid.UUID(tenantA), uuid.UUID(tenantB), "UUID values must differ")
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical parsing behavior.
//
// Inconsistent validation across ID types could create security holes.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errTenant := ParseTenantID(validUUID)
		_, errWorkspace := ParseWorkspaceID(validUUID)
		_, errRuleset := ParseRulesetID(validUUID)
		_, errRun := ParseRunID(validUUID)

		require.NoError(t, errTenant)
		require.NoError(t, errWorkspace)
		require.NoError(t, errRuleset)
		require.NoError(t, errRun)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errTenant := ParseTenantID(input)
			_, errWorkspace := ParseWorkspaceID(input)
			_, errRuleset := ParseRulesetID(input)
			_, errRun := ParseRunID(input)

			require.Error(t, errTenant)
			require.Error(t, errWorkspace)
			require.Error(t, errRuleset)
			require.Error(t, errRun)
		})
	}
}
