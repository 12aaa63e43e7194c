//go:build integration

package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"conforma/internal/audit"
	auditpg "conforma/internal/audit/store/postgres"
	"conforma/internal/platform/kafka"
	id "conforma/pkg/domain"
	"conforma/pkg/testutil/containers"
)

type OutboxWorkerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	producer *kafka.Producer
	store    *auditpg.Store
	worker   *audit.OutboxWorker
}

func TestOutboxWorkerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxWorkerSuite))
}

func (s *OutboxWorkerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	producer, err := kafka.NewProducer([]string{s.redpanda.Broker}, logger)
	s.Require().NoError(err)
	s.producer = producer
	s.Require().NoError(producer.EnsureTopics(context.Background(), 1, 1, audit.Topic))

	s.store = auditpg.New(s.postgres.DB)
	s.worker = audit.NewOutboxWorker(s.postgres.DB, producer, logger)
}

func (s *OutboxWorkerSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *OutboxWorkerSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *OutboxWorkerSuite) appendEvent(tenantID id.TenantID, action string) {
	err := s.store.Append(context.Background(), audit.Event{
		Timestamp: time.Now(),
		TenantID:  tenantID,
		Subject:   tenantID.String(),
		Action:    action,
		ActorID:   "worker-test",
	})
	s.Require().NoError(err)
}

// consumeForTenant reads the audit topic from the beginning and returns the
// records keyed by the given tenant. The topic is shared across tests, so
// filtering by key keeps each test blind to the others' events.
func (s *OutboxWorkerSuite) consumeForTenant(tenantID id.TenantID, want int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(audit.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(fetches.Err())
		for _, record := range fetches.Records() {
			if string(record.Key) == tenantID.String() {
				records = append(records, record)
			}
		}
	}
	return records
}

func (s *OutboxWorkerSuite) pendingCount() int {
	var n int
	err := s.postgres.DB.QueryRow(`SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *OutboxWorkerSuite) TestDrainPublishesAndMarks() {
	tenantID := id.NewTenantID()
	s.appendEvent(tenantID, string(audit.EventDerivationCompleted))
	s.appendEvent(tenantID, string(audit.EventDerivationFailed))
	s.Require().Equal(2, s.pendingCount())

	s.Require().NoError(s.worker.DrainOnce(context.Background()))
	s.Require().Equal(0, s.pendingCount())

	// Tenant-keyed records keep one tenant's events on one partition.
	records := s.consumeForTenant(tenantID, 2)

	var payload struct {
		TenantID string `json:"TenantID"`
		Action   string `json:"Action"`
		ActorID  string `json:"ActorID"`
	}
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal(tenantID.String(), payload.TenantID)
	s.Equal(string(audit.EventDerivationCompleted), payload.Action)
	s.Equal("worker-test", payload.ActorID)
}

func (s *OutboxWorkerSuite) TestDrainIsIdempotentOnEmptyOutbox() {
	s.Require().NoError(s.worker.DrainOnce(context.Background()))
	s.Require().NoError(s.worker.DrainOnce(context.Background()))
	s.Equal(0, s.pendingCount())
}

func (s *OutboxWorkerSuite) TestDrainRespectsBatchSize() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	worker := audit.NewOutboxWorker(s.postgres.DB, s.producer, logger, audit.WithBatchSize(1))

	tenantID := id.NewTenantID()
	s.appendEvent(tenantID, string(audit.EventTenantCreated))
	s.appendEvent(tenantID, string(audit.EventWorkspaceCreated))

	s.Require().NoError(worker.DrainOnce(context.Background()))
	s.Equal(1, s.pendingCount())

	s.Require().NoError(worker.DrainOnce(context.Background()))
	s.Equal(0, s.pendingCount())
}
