package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Synchronizer/internal/domain"
)

const defaultQueryTimeout = 10 * time.Second

// Criteria — условие выборки и захвата синхронизаций.
//
// Одно и то же условие используется в SELECT (выборка) и в условном UPDATE
// (захват), поэтому запись, изменившаяся между ними, захвачена не будет.
type Criteria struct {
	Mode domain.SelectMode

	// Now — момент прохода.
	Now time.Time

	// MaxRetries — лимит ретраев для FAILURE (только SelectDue).
	MaxRetries int

	// StallingMaxTime — порог зависания (только SelectStalled).
	StallingMaxTime time.Duration
}

// predicate возвращает SQL-условие с плейсхолдерами начиная с $first.
//
// Время передаётся в UTC: для колонок timestamp without time zone pgx
// отбрасывает зону и отправляет локальные часы процесса.
func (c Criteria) predicate(first int) (string, []any, error) {
	now := c.Now.UTC()

	switch c.Mode {
	case domain.SelectDue:
		return fmt.Sprintf(
				"run_at <= $%d AND (state = $%d OR (state = $%d AND retried_times < $%d))",
				first, first+1, first+2, first+3,
			),
			[]any{now, string(domain.SyncStateSuccess), string(domain.SyncStateFailure), c.MaxRetries},
			nil
	case domain.SelectForceAll:
		return fmt.Sprintf("state IN ($%d, $%d)", first, first+1),
			[]any{string(domain.SyncStateSuccess), string(domain.SyncStateSyncing)},
			nil
	case domain.SelectStalled:
		return fmt.Sprintf("state = $%d AND ran_at < $%d", first, first+1),
			[]any{string(domain.SyncStateSyncing), now.Add(-c.StallingMaxTime)},
			nil
	default:
		return "", nil, fmt.Errorf("unknown select mode %q", c.Mode)
	}
}

// SyncRepo — репозиторий для работы с синхронизациями.
type SyncRepo struct {
	db      DBTX
	table   string
	timeout time.Duration
}

// SyncRepoConfig — конфигурация SyncRepo.
type SyncRepoConfig struct {
	// Table — имя таблицы, допускается schema.table (default: synchronizations).
	Table string

	// QueryTimeout — таймаут одного запроса (default: 10s).
	QueryTimeout time.Duration
}

// NewSyncRepo создаёт новый SyncRepo.
func NewSyncRepo(db DBTX, cfg SyncRepoConfig) *SyncRepo {
	table := cfg.Table
	if table == "" {
		table = "synchronizations"
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	return &SyncRepo{
		db:      db,
		table:   pgx.Identifier(strings.Split(table, ".")).Sanitize(),
		timeout: timeout,
	}
}

// ListEligible возвращает синхронизации, готовые к обычному или принудительному запуску.
func (r *SyncRepo) ListEligible(ctx context.Context, now time.Time, forceAll bool, maxRetries int) ([]domain.JobRef, error) {
	mode := domain.SelectDue
	if forceAll {
		mode = domain.SelectForceAll
	}
	return r.selectRefs(ctx, Criteria{Mode: mode, Now: now, MaxRetries: maxRetries})
}

// ListStalled возвращает синхронизации, висящие в SYNCING дольше threshold.
func (r *SyncRepo) ListStalled(ctx context.Context, now time.Time, threshold time.Duration) ([]domain.JobRef, error) {
	return r.selectRefs(ctx, Criteria{Mode: domain.SelectStalled, Now: now, StallingMaxTime: threshold})
}

// selectRefs возвращает ссылки на записи, удовлетворяющие Criteria.
func (r *SyncRepo) selectRefs(ctx context.Context, c Criteria) ([]domain.JobRef, error) {
	where, args, err := c.predicate(1)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, name, state FROM %s WHERE %s ORDER BY run_at, id`, r.table, where)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s synchronizations: %w", c.Mode, err)
	}
	defer rows.Close()

	var refs []domain.JobRef
	for rows.Next() {
		var ref domain.JobRef
		var state string
		if err := rows.Scan(&ref.ID, &ref.Name, &state); err != nil {
			return nil, fmt.Errorf("scan synchronization ref: %w", err)
		}
		ref.State = domain.ParseSyncState(state)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s synchronizations: %w", c.Mode, err)
	}
	return refs, nil
}

// Claim атомарно переводит запись в QUEUED, если она всё ещё удовлетворяет Criteria.
// Возвращает ErrNotClaimed, если условие уже не выполняется.
func (r *SyncRepo) Claim(ctx context.Context, id uuid.UUID, c Criteria) error {
	where, args, err := c.predicate(3)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET state = $1 WHERE id = $2 AND %s`, r.table, where)
	tag, err := r.db.Exec(ctx, query, append([]any{string(domain.SyncStateQueued), id}, args...)...)
	if err != nil {
		return fmt.Errorf("claim synchronization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Release возвращает захваченную запись в состояние, в котором она была выбрана.
// Запись, которую уже подхватил воркер, не трогается.
func (r *SyncRepo) Release(ctx context.Context, ref domain.JobRef) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET state = $1 WHERE id = $2 AND state = $3`, r.table)
	tag, err := r.db.Exec(ctx, query, string(ref.State), ref.ID, string(domain.SyncStateQueued))
	if err != nil {
		return fmt.Errorf("release synchronization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// SetState безусловно меняет состояние записи.
// Возвращает количество изменённых строк.
func (r *SyncRepo) SetState(ctx context.Context, id uuid.UUID, state domain.SyncState) (int64, error) {
	if !state.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET state = $1 WHERE id = $2`, r.table)
	tag, err := r.db.Exec(ctx, query, string(state), id)
	if err != nil {
		return 0, fmt.Errorf("set synchronization state: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID возвращает синхронизацию по ID.
func (r *SyncRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Synchronization, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, name, state, run_at, ran_at, retried_times
		FROM %s
		WHERE id = $1
	`, r.table)

	s, err := scanSynchronization(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get synchronization: %w", err)
	}
	return s, nil
}

// SyncFilter — параметры фильтрации синхронизаций.
type SyncFilter struct {
	State  *domain.SyncState
	Limit  int
	Offset int
}

// List возвращает синхронизации с фильтрацией.
func (r *SyncRepo) List(ctx context.Context, filter SyncFilter) ([]domain.Synchronization, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var state *string
	if filter.State != nil {
		s := string(*filter.State)
		state = &s
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, name, state, run_at, ran_at, retried_times
		FROM %s
		WHERE ($1::text IS NULL OR state = $1)
		ORDER BY run_at NULLS LAST, id
		LIMIT $2 OFFSET $3
	`, r.table)

	rows, err := r.db.Query(ctx, query, state, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list synchronizations: %w", err)
	}
	defer rows.Close()

	var syncs []domain.Synchronization
	for rows.Next() {
		s, err := scanSynchronization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan synchronization: %w", err)
		}
		syncs = append(syncs, *s)
	}
	return syncs, rows.Err()
}

// --- Helpers ---

func scanSynchronization(row pgx.Row) (*domain.Synchronization, error) {
	var s domain.Synchronization
	var name *string
	var state string
	var retried *int

	err := row.Scan(
		&s.ID,
		&name,
		&state,
		&s.RunAt,
		&s.RanAt,
		&retried,
	)
	if err != nil {
		return nil, err
	}

	if name != nil {
		s.Name = *name
	}
	if retried != nil {
		s.RetriedTimes = *retried
	}
	s.State = domain.ParseSyncState(state)

	return &s, nil
}
