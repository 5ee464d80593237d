package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaderLock — сессионный advisory lock Postgres.
//
// Advisory lock привязан к соединению, поэтому LeaderLock держит
// выделенное соединение из пула, пока лидерство не отпущено.
type LeaderLock struct {
	pool *pgxpool.Pool
	name string

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewLeaderLock создаёт LeaderLock. Ключ блокировки — hashtext(name).
func NewLeaderLock(pool *pgxpool.Pool, name string) *LeaderLock {
	return &LeaderLock{pool: pool, name: name}
}

// TryAcquire пытается стать лидером (или подтверждает лидерство).
func (l *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		// Соединение могло умереть вместе с блокировкой
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", l.name).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}

	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release отпускает лидерство.
func (l *LeaderLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	_, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock(hashtext($1))", l.name)
	l.conn.Release()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
