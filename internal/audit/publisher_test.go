package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conforma/internal/audit"
	"conforma/internal/audit/store/memory"
	"conforma/internal/isolation"
	id "conforma/pkg/domain"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store)
	defer pub.Close()

	tenantID := id.NewTenantID()
	err := pub.Emit(context.Background(), audit.Event{
		TenantID: tenantID,
		Action:   string(audit.EventDerivationCompleted),
	})
	require.NoError(t, err)

	events, err := store.ListByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventDerivationCompleted), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store, audit.WithAsyncBuffer(100))

	tenantID := id.NewTenantID()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			TenantID: tenantID,
			Action:   string(audit.EventDerivationStarted),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestPublisher_AsyncFullBufferFallsBackToSync(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store, audit.WithAsyncBuffer(1))
	defer pub.Close()

	tenantID := id.NewTenantID()
	for range 50 {
		err := pub.Emit(context.Background(), audit.Event{
			TenantID: tenantID,
			Action:   string(audit.EventDerivationStarted),
		})
		require.NoError(t, err)
	}
	pub.Close()

	events, err := store.ListByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Len(t, events, 50)
}

func TestSink_EmitsSecurityEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store)
	defer pub.Close()
	sink := audit.NewSink(pub)

	attacker := id.NewTenantID()
	victim := id.NewTenantID()
	sink.CrossTenantViolation(context.Background(), isolation.ForTenant(attacker), victim, "reconcile_scope")

	events, err := store.ListByTenant(context.Background(), attacker)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
	assert.Equal(t, string(audit.EventCrossTenantViolation), events[0].Action)
	assert.Equal(t, victim.String(), events[0].Subject)
	assert.Equal(t, audit.SeverityCritical, events[0].Severity)
}
