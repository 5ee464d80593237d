package synchronizer

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Synchronizer/internal/domain"
	"github.com/shaiso/Synchronizer/internal/repo"
)

// Selection — снимок выборки на момент прохода.
type Selection struct {
	// Criteria — условие выборки, оно же условие захвата.
	Criteria repo.Criteria

	// Refs — выбранные записи в порядке run_at, id.
	Refs []domain.JobRef
}

// Selector решает, какие записи подходят для dispatch.
type Selector struct {
	store           Store
	maxRetries      int
	stallingMaxTime time.Duration
}

// NewSelector создаёт Selector.
func NewSelector(store Store, maxRetries int, stallingMaxTime time.Duration) *Selector {
	return &Selector{
		store:           store,
		maxRetries:      maxRetries,
		stallingMaxTime: stallingMaxTime,
	}
}

// Criteria строит условие выборки для режима на момент now (в UTC).
func (s *Selector) Criteria(mode domain.SelectMode, now time.Time) repo.Criteria {
	return repo.Criteria{
		Mode:            mode,
		Now:             now.UTC(),
		MaxRetries:      s.maxRetries,
		StallingMaxTime: s.stallingMaxTime,
	}
}

// Select выбирает записи. Записи не перепроверяются до захвата:
// это делает условный UPDATE в Dispatcher.
func (s *Selector) Select(ctx context.Context, mode domain.SelectMode, now time.Time) (Selection, error) {
	c := s.Criteria(mode, now)

	var refs []domain.JobRef
	var err error
	switch mode {
	case domain.SelectDue, domain.SelectForceAll:
		refs, err = s.store.ListEligible(ctx, c.Now, mode == domain.SelectForceAll, c.MaxRetries)
	case domain.SelectStalled:
		refs, err = s.store.ListStalled(ctx, c.Now, c.StallingMaxTime)
	default:
		err = fmt.Errorf("unknown select mode %q", mode)
	}
	if err != nil {
		return Selection{Criteria: c}, err
	}
	return Selection{Criteria: c, Refs: refs}, nil
}
