package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Synchronizer/internal/domain"
	"github.com/shaiso/Synchronizer/internal/repo"
)

// SyncStatus — синхронизация с вычисленной пригодностью к проходам.
type SyncStatus struct {
	domain.Synchronization
	Due     bool `json:"due"`
	Stalled bool `json:"stalled"`
}

// NewStatusCmd создаёт команду просмотра синхронизаций.
func NewStatusCmd(envFn func() (*Env, error), outputFn func() *Output) *cobra.Command {
	var state string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "status [ID]",
		Short: "List synchronizations and whether the next pass would pick them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := envFn()
			if err != nil {
				return err
			}

			filter := repo.SyncFilter{Limit: limit, Offset: offset}
			if state != "" {
				s := domain.ParseSyncState(state)
				if !s.IsValid() {
					return fmt.Errorf("unknown state %q", state)
				}
				filter.State = &s
			}

			pool, store, err := OpenStore(cmd.Context(), env.Config)
			if err != nil {
				return err
			}
			defer pool.Close()

			var id string
			if len(args) == 1 {
				id = args[0]
			}

			syncs, err := fetchSynchronizations(cmd.Context(), store, id, filter)
			if err != nil {
				return err
			}

			statuses := buildStatuses(syncs, time.Now(), env.Config.MaxRetries, env.Config.StallingMaxTime)
			outputFn().Print(statusHeaders, statusRows(statuses), statuses)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (queued, syncing, success, failure)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	return cmd
}

// statusStore — чтение синхронизаций. Реализация: *repo.SyncRepo.
type statusStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Synchronization, error)
	List(ctx context.Context, filter repo.SyncFilter) ([]domain.Synchronization, error)
}

// fetchSynchronizations возвращает одну запись по id или список по filter, если id пуст.
func fetchSynchronizations(ctx context.Context, store statusStore, id string, filter repo.SyncFilter) ([]domain.Synchronization, error) {
	if id == "" {
		return store.List(ctx, filter)
	}

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid synchronization id %q: %w", id, err)
	}

	s, err := store.GetByID(ctx, uid)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("synchronization %s not found", uid)
	}
	if err != nil {
		return nil, err
	}
	return []domain.Synchronization{*s}, nil
}

var statusHeaders = []string{"ID", "NAME", "STATE", "RUN_AT", "RAN_AT", "RETRIED", "DUE", "STALLED"}

func buildStatuses(syncs []domain.Synchronization, now time.Time, maxRetries int, stalling time.Duration) []SyncStatus {
	statuses := make([]SyncStatus, len(syncs))
	for i, s := range syncs {
		statuses[i] = SyncStatus{
			Synchronization: s,
			Due:             s.IsDue(now, maxRetries),
			Stalled:         s.IsStalled(now, stalling),
		}
	}
	return statuses
}

func statusRows(statuses []SyncStatus) [][]string {
	rows := make([][]string, len(statuses))
	for i, s := range statuses {
		rows[i] = []string{
			s.ID.String(),
			s.Name,
			string(s.State),
			formatTime(s.RunAt),
			formatTime(s.RanAt),
			strconv.Itoa(s.RetriedTimes),
			yesNo(s.Due),
			yesNo(s.Stalled),
		}
	}
	return rows
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
