package synchronizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Synchronizer/internal/domain"
	"github.com/shaiso/Synchronizer/internal/telemetry"
)

// Synchronizer — драйвер проходов: выборка → dispatch.
//
// Synchronizer не хранит состояние между проходами: каждый проход
// перечитывает таблицу заново.
type Synchronizer struct {
	selector   *Selector
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// Config — конфигурация Synchronizer.
type Config struct {
	Store     Store
	Publisher Publisher
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics // опционально

	// MaxRetries — лимит ретраев FAILURE. 0 — FAILURE не выбирается вовсе,
	// отрицательное значение — DefaultMaxRetries.
	MaxRetries      int
	StallingMaxTime time.Duration // порог зависания SYNCING (default: 3h)
	Strategy        Strategy      // default: claim

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// Report — итог одного прохода.
type Report struct {
	DispatchResult

	Mode     domain.SelectMode `json:"mode"`
	Selected int               `json:"selected"`
	Duration time.Duration     `json:"duration"`

	// Err — ошибка выборки или прерывание прохода. Проход при этом
	// считается завершённым с пустой (или частичной) выборкой.
	Err error `json:"-"`
}

// New создаёт новый Synchronizer.
func New(cfg Config) *Synchronizer {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	stalling := cfg.StallingMaxTime
	if stalling <= 0 {
		stalling = domain.DefaultStallingMaxTime
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Synchronizer{
		selector:   NewSelector(cfg.Store, maxRetries, stalling),
		dispatcher: NewDispatcher(cfg.Store, cfg.Publisher, cfg.Strategy, logger, cfg.Metrics),
		logger:     logger,
		metrics:    cfg.Metrics,
		now:        now,
	}
}

// Run выполняет обычный проход.
func (s *Synchronizer) Run(ctx context.Context) Report {
	return s.Fetch(ctx, false)
}

// Fetch выбирает и ставит в очередь синхронизации, которым пора выполняться.
// forceAll выбирает все SUCCESS и SYNCING без учёта run_at.
func (s *Synchronizer) Fetch(ctx context.Context, forceAll bool) Report {
	mode := domain.SelectDue
	if forceAll {
		mode = domain.SelectForceAll
	}
	return s.pass(ctx, mode)
}

// EnqueueStalled ставит в очередь синхронизации, зависшие в SYNCING дольше порога.
// Так бывает, когда воркер перезапустили посреди синхронизации.
// retried_times не меняется.
func (s *Synchronizer) EnqueueStalled(ctx context.Context) Report {
	return s.pass(ctx, domain.SelectStalled)
}

func logFinished(logger *slog.Logger, report Report) {
	logger.Info("pass finished",
		"mode", report.Mode,
		"selected", report.Selected,
		"dispatched", report.Dispatched,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
}

// pass — выборка и dispatch для одного режима.
// Момент прохода берётся в UTC.
func (s *Synchronizer) pass(ctx context.Context, mode domain.SelectMode) (report Report) {
	logger := telemetry.FromContext(ctx, s.logger)
	started := time.Now()
	report.Mode = mode

	defer func() {
		report.Duration = time.Since(started)
		s.metrics.ObservePass(string(mode), started)
		logFinished(logger, report)
	}()

	sel, err := s.selector.Select(ctx, mode, s.now().UTC())
	if err != nil {
		// Недоступность БД не должна ронять процесс: пустая выборка, следующий проход повторит
		logger.Error("failed to fetch synchronizations", "mode", mode, "error", err)
		if s.metrics != nil {
			s.metrics.SelectErrors.WithLabelValues(string(mode)).Inc()
		}
		report.Err = err
		return report
	}

	report.Selected = len(sel.Refs)
	if s.metrics != nil {
		s.metrics.Selected.WithLabelValues(string(mode)).Add(float64(report.Selected))
	}
	logger.Info("fetched synchronizations", "mode", mode, "count", report.Selected)

	report.DispatchResult, report.Err = s.dispatcher.Dispatch(ctx, sel)
	return report
}
