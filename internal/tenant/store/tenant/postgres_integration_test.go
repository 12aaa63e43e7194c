//go:build integration

package tenant_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"conforma/internal/tenant/models"
	"conforma/internal/tenant/store/tenant"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *tenant.PostgresStore
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
	s.store = tenant.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx, "scope_items", "derivation_runs", "workspaces", "tenants")
	s.Require().NoError(err)
}

func newTestTenant(name string) *models.Tenant {
	now := time.Now()
	return &models.Tenant{
		ID:        id.NewTenantID(),
		Name:      name,
		Status:    models.TenantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestConcurrentUniqueNameViolation verifies that concurrent creation attempts
// with the same name result in exactly one success.
func (s *PostgresStoreSuite) TestConcurrentUniqueNameViolation() {
	ctx := context.Background()
	tenantName := "Concurrent Test Tenant " + uuid.NewString()
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			t := newTestTenant(tenantName)
			err := s.store.CreateIfNameAvailable(ctx, t)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get conflict error")

	found, err := s.store.FindByName(ctx, tenantName)
	s.Require().NoError(err)
	s.Equal(tenantName, found.Name)
}

// TestCaseInsensitiveUniqueness verifies that tenant names are unique regardless of case.
func (s *PostgresStoreSuite) TestCaseInsensitiveUniqueness() {
	ctx := context.Background()
	baseName := "CaseTest" + uuid.NewString()

	t1 := newTestTenant(baseName)
	s.Require().NoError(s.store.CreateIfNameAvailable(ctx, t1))

	testCases := []string{
		strings.ToUpper(baseName),
		strings.ToLower(baseName),
	}

	for _, name := range testCases {
		t := newTestTenant(name)
		err := s.store.CreateIfNameAvailable(ctx, t)
		s.ErrorIs(err, sentinel.ErrConflict, "name %q should conflict with %q", name, baseName)
	}

	for _, name := range testCases {
		found, err := s.store.FindByName(ctx, name)
		s.Require().NoError(err)
		s.Equal(t1.ID, found.ID, "FindByName(%q) should find the same tenant", name)
	}
}

// TestConcurrentDifferentNames verifies concurrent creation of different tenant names.
func (s *PostgresStoreSuite) TestConcurrentDifferentNames() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var failures atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			t := newTestTenant("Tenant " + uuid.NewString())
			if err := s.store.CreateIfNameAvailable(ctx, t); err != nil {
				failures.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(0), failures.Load(), "no errors expected for unique names")

	list, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(list, goroutines)
}

// TestUpdatePersistsLifecycle verifies status round-trips through the database.
func (s *PostgresStoreSuite) TestUpdatePersistsLifecycle() {
	ctx := context.Background()

	t := newTestTenant("Lifecycle " + uuid.NewString())
	s.Require().NoError(s.store.CreateIfNameAvailable(ctx, t))

	t.Status = models.TenantStatusInactive
	t.UpdatedAt = time.Now()
	s.Require().NoError(s.store.Update(ctx, t))

	found, err := s.store.FindByID(ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(models.TenantStatusInactive, found.Status)
}
