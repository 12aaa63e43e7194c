package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// classID namespaces derivation locks within the advisory lock keyspace so
// they cannot collide with locks taken by other subsystems.
const classID int32 = 0x434F4E46 // "CONF"

// Postgres implements Locker with session advisory locks. Each acquisition
// pins one connection from the pool; the lock lives until release closes
// that connection, so it survives across the run's separate transactions
// (run log insert, reconciliation) and dies with the session on a crash.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Acquire(ctx context.Context, tenantID id.TenantID, rulesetCode string) (func(), error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := lockObjectID(tenantID, rulesetCode)

	var acquired bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1, $2)`, classID, key,
	).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, sentinel.ErrLocked
	}

	release := func() {
		// Unlock best-effort; closing the connection releases the lock
		// regardless.
		_, _ = conn.ExecContext(context.Background(),
			`SELECT pg_advisory_unlock($1, $2)`, classID, key)
		_ = conn.Close()
	}
	return release, nil
}

// lockObjectID folds the tenant UUID and ruleset code into the 32-bit
// object half of the advisory lock key.
func lockObjectID(tenantID id.TenantID, rulesetCode string) int32 {
	h := fnv.New32a()
	raw := uuid.UUID(tenantID)
	_, _ = h.Write(raw[:])
	_, _ = h.Write([]byte(rulesetCode))
	return int32(h.Sum32())
}
