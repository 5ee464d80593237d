package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Synchronizer/internal/domain"
	"github.com/shaiso/Synchronizer/internal/repo"
	"github.com/shaiso/Synchronizer/internal/telemetry"
)

// Store — хранилище синхронизаций. Реализация: *repo.SyncRepo.
type Store interface {
	ListEligible(ctx context.Context, now time.Time, forceAll bool, maxRetries int) ([]domain.JobRef, error)
	ListStalled(ctx context.Context, now time.Time, threshold time.Duration) ([]domain.JobRef, error)
	Claim(ctx context.Context, id uuid.UUID, c repo.Criteria) error
	Release(ctx context.Context, ref domain.JobRef) error
	SetState(ctx context.Context, id uuid.UUID, state domain.SyncState) (int64, error)
}

// Publisher публикует ссылку на синхронизацию. Реализация: *mq.Publisher.
// Возврат nil означает, что брокер принял сообщение.
type Publisher interface {
	PublishSyncJob(ctx context.Context, jobID uuid.UUID) error
}

// Strategy — порядок захвата и публикации.
type Strategy string

const (
	// StrategyClaim — условный UPDATE → публикация → откат, если публикация не удалась.
	StrategyClaim Strategy = "claim"

	// StrategyLenient — публикация → безусловный UPDATE в QUEUED даже при ошибке публикации.
	StrategyLenient Strategy = "lenient"
)

// ParseStrategy парсит строку в Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyClaim, StrategyLenient:
		return Strategy(s), nil
	case "":
		return StrategyClaim, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// DispatchResult — итог dispatch одной выборки.
type DispatchResult struct {
	// Dispatched — опубликованы и переведены в QUEUED.
	Dispatched int `json:"dispatched"`

	// Skipped — к моменту захвата уже не подходили (забрал другой проход или воркер).
	Skipped int `json:"skipped"`

	// Failed — ошибка захвата, публикации или обновления.
	Failed int `json:"failed"`
}

// Dispatcher ставит выбранные записи в очередь.
type Dispatcher struct {
	store     Store
	publisher Publisher
	strategy  Strategy
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// NewDispatcher создаёт Dispatcher. metrics может быть nil.
func NewDispatcher(store Store, publisher Publisher, strategy Strategy, logger *slog.Logger, metrics *telemetry.Metrics) *Dispatcher {
	if strategy == "" {
		strategy = StrategyClaim
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		strategy:  strategy,
		logger:    logger,
		metrics:   metrics,
	}
}

// Dispatch обрабатывает записи выборки последовательно, в порядке выборки.
//
// Ошибка одной записи не прерывает обработку остальных. Отмена ctx
// останавливает проход перед следующей записью.
func (d *Dispatcher) Dispatch(ctx context.Context, sel Selection) (DispatchResult, error) {
	var res DispatchResult

	for i, ref := range sel.Refs {
		if err := ctx.Err(); err != nil {
			telemetry.FromContext(ctx, d.logger).Warn("dispatch interrupted",
				"mode", sel.Criteria.Mode,
				"remaining", len(sel.Refs)-i,
				"error", err,
			)
			return res, fmt.Errorf("dispatch interrupted: %w", err)
		}

		logger := telemetry.WithSync(telemetry.FromContext(ctx, d.logger), ref.ID.String(), ref.Name).With("mode", sel.Criteria.Mode)

		var err error
		switch d.strategy {
		case StrategyLenient:
			err = d.dispatchLenient(ctx, logger, ref, sel.Criteria.Mode)
		default:
			err = d.dispatchClaimed(ctx, logger, ref, sel.Criteria)
		}

		mode := string(sel.Criteria.Mode)
		switch {
		case err == nil:
			res.Dispatched++
			if d.metrics != nil {
				d.metrics.Dispatched.WithLabelValues(mode).Inc()
			}
		case errors.Is(err, ErrSkipped):
			res.Skipped++
			if d.metrics != nil {
				d.metrics.Skipped.WithLabelValues(mode).Inc()
			}
		default:
			res.Failed++
		}
	}

	return res, nil
}

// dispatchClaimed: захват → публикация → откат при ошибке публикации.
func (d *Dispatcher) dispatchClaimed(ctx context.Context, logger *slog.Logger, ref domain.JobRef, c repo.Criteria) error {
	if err := d.store.Claim(ctx, ref.ID, c); err != nil {
		if errors.Is(err, repo.ErrNotClaimed) {
			logger.Info("synchronization no longer eligible, skipping")
			return ErrSkipped
		}
		logger.Error("failed to claim synchronization", "error", err)
		d.fail(c.Mode, telemetry.StageClaim)
		return err
	}

	logger.Debug("enqueueing synchronization")

	if err := d.publisher.PublishSyncJob(ctx, ref.ID); err != nil {
		logger.Error("failed to publish synchronization", "error", err)
		d.fail(c.Mode, telemetry.StagePublish)

		// Возвращаем запись в исходное состояние, чтобы следующий проход выбрал её снова.
		// Откат выполняется и после отмены ctx, иначе запись останется в QUEUED без сообщения.
		if rerr := d.store.Release(context.WithoutCancel(ctx), ref); rerr != nil {
			logger.Error("failed to release synchronization, left queued",
				"previous_state", ref.State,
				"error", rerr,
			)
			d.fail(c.Mode, telemetry.StageRelease)
		}
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	logger.Info("enqueued synchronization")
	return nil
}

// dispatchLenient: публикация → безусловный UPDATE в QUEUED.
// Если публикация не удалась, запись всё равно уходит в QUEUED.
func (d *Dispatcher) dispatchLenient(ctx context.Context, logger *slog.Logger, ref domain.JobRef, mode domain.SelectMode) error {
	logger.Debug("enqueueing synchronization")

	pubErr := d.publisher.PublishSyncJob(ctx, ref.ID)
	if pubErr != nil {
		logger.Error("failed to publish synchronization, marking queued anyway", "error", pubErr)
		d.fail(mode, telemetry.StagePublish)
	}

	n, err := d.store.SetState(ctx, ref.ID, domain.SyncStateQueued)
	if err != nil {
		logger.Error("failed to mark synchronization queued", "error", err)
		d.fail(mode, telemetry.StageUpdate)
		return err
	}
	if n == 0 {
		logger.Warn("synchronization disappeared before update")
		return ErrSkipped
	}

	if pubErr != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, pubErr)
	}

	logger.Info("enqueued synchronization")
	return nil
}

func (d *Dispatcher) fail(mode domain.SelectMode, stage string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Failures.WithLabelValues(string(mode), stage).Inc()
}
