package synchronizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Synchronizer/internal/domain"
	"github.com/shaiso/Synchronizer/internal/repo"
)

// memStore — Store в памяти с теми же условиями, что и SQL в repo.SyncRepo.
type memStore struct {
	mu    sync.Mutex
	syncs map[uuid.UUID]*domain.Synchronization

	selectErr   error
	claimErr    map[uuid.UUID]error
	setStateErr map[uuid.UUID]error
	releaseErr  error

	// beforeClaim вызывается перед проверкой условия захвата.
	beforeClaim func(id uuid.UUID)

	// selectedAt — моменты, с которыми вызывались выборки.
	selectedAt []time.Time
}

func newMemStore(syncs ...domain.Synchronization) *memStore {
	s := &memStore{
		syncs:       make(map[uuid.UUID]*domain.Synchronization),
		claimErr:    make(map[uuid.UUID]error),
		setStateErr: make(map[uuid.UUID]error),
	}
	for i := range syncs {
		rec := syncs[i]
		s.syncs[rec.ID] = &rec
	}
	return s
}

func matches(rec *domain.Synchronization, c repo.Criteria) bool {
	switch c.Mode {
	case domain.SelectDue:
		return rec.IsDue(c.Now, c.MaxRetries)
	case domain.SelectForceAll:
		return rec.IsForceEligible()
	case domain.SelectStalled:
		return rec.IsStalled(c.Now, c.StallingMaxTime)
	default:
		return false
	}
}

func (s *memStore) ListEligible(_ context.Context, now time.Time, forceAll bool, maxRetries int) ([]domain.JobRef, error) {
	mode := domain.SelectDue
	if forceAll {
		mode = domain.SelectForceAll
	}
	return s.selectRefs(repo.Criteria{Mode: mode, Now: now, MaxRetries: maxRetries})
}

func (s *memStore) ListStalled(_ context.Context, now time.Time, threshold time.Duration) ([]domain.JobRef, error) {
	return s.selectRefs(repo.Criteria{Mode: domain.SelectStalled, Now: now, StallingMaxTime: threshold})
}

func (s *memStore) selectRefs(c repo.Criteria) ([]domain.JobRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedAt = append(s.selectedAt, c.Now)
	if s.selectErr != nil {
		return nil, s.selectErr
	}

	var recs []*domain.Synchronization
	for _, rec := range s.syncs {
		if matches(rec, c) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Name < recs[j].Name
	})

	refs := make([]domain.JobRef, 0, len(recs))
	for _, rec := range recs {
		refs = append(refs, rec.Ref())
	}
	return refs, nil
}

func (s *memStore) Claim(ctx context.Context, id uuid.UUID, c repo.Criteria) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.beforeClaim != nil {
		s.beforeClaim(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.claimErr[id]; err != nil {
		return err
	}

	rec, ok := s.syncs[id]
	if !ok || !matches(rec, c) {
		return repo.ErrNotClaimed
	}
	rec.State = domain.SyncStateQueued
	return nil
}

func (s *memStore) Release(ctx context.Context, ref domain.JobRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.releaseErr != nil {
		return s.releaseErr
	}

	rec, ok := s.syncs[ref.ID]
	if !ok || rec.State != domain.SyncStateQueued {
		return repo.ErrInvalidState
	}
	rec.State = ref.State
	return nil
}

func (s *memStore) SetState(ctx context.Context, id uuid.UUID, state domain.SyncState) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setStateErr[id]; err != nil {
		return 0, err
	}

	rec, ok := s.syncs[id]
	if !ok {
		return 0, nil
	}
	rec.State = state
	return 1, nil
}

func (s *memStore) state(id uuid.UUID) domain.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs[id].State
}

// set меняет запись так, как это сделал бы воркер.
func (s *memStore) set(id uuid.UUID, fn func(rec *domain.Synchronization)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.syncs[id])
}

// fakePublisher запоминает опубликованные id.
type fakePublisher struct {
	mu        sync.Mutex
	published []uuid.UUID
	fail      map[uuid.UUID]bool
	failAll   bool

	// onPublish вызывается перед публикацией; ненулевая ошибка возвращается вызывающему.
	onPublish func(ctx context.Context) error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{fail: make(map[uuid.UUID]bool)}
}

func (p *fakePublisher) PublishSyncJob(ctx context.Context, id uuid.UUID) error {
	if p.onPublish != nil {
		if err := p.onPublish(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failAll || p.fail[id] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, id)
	return nil
}

func (p *fakePublisher) ids() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.published...)
}

// --- helpers ---

func sid(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
}

func at(t time.Time) *time.Time { return &t }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
