package synchronizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Synchronizer/internal/telemetry"
)

// scheduleParser — парсер спецификаций запуска проходов.
// Поддерживает 5-польный cron и дескрипторы вида "@every 1m", "@hourly".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule проверяет спецификацию запуска.
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, spec, err)
	}
	return nil
}

// Locker — лидерская блокировка. Реализация: *repo.LeaderLock.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// TriggerConfig — конфигурация Trigger.
type TriggerConfig struct {
	Synchronizer *Synchronizer

	// Lock — опционально. Если задан, проходы выполняет только лидер.
	Lock Locker

	// Schedule — спецификация обычного прохода (default: "@every 1m").
	Schedule string

	// StalledSchedule — спецификация поиска зависших (default: "@every 10m").
	// "-" отключает поиск зависших.
	StalledSchedule string

	Logger *slog.Logger
}

// Trigger периодически запускает проходы внутри долгоживущего процесса.
//
// Проходы одного вида не пересекаются внутри процесса (SkipIfStillRunning),
// между процессами их разводит Lock.
type Trigger struct {
	cron   *cron.Cron
	sync   *Synchronizer
	lock   Locker
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTrigger создаёт Trigger и регистрирует проходы.
func NewTrigger(cfg TriggerConfig) (*Trigger, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	stalled := cfg.StalledSchedule
	if stalled == "" {
		stalled = "@every 10m"
	}

	cl := cronLogger{logger: logger}
	t := &Trigger{
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sync:   cfg.Synchronizer,
		lock:   cfg.Lock,
		logger: logger,
		ctx:    context.Background(),
		cancel: func() {},
	}

	if _, err := t.cron.AddFunc(schedule, func() { t.runPass("run", t.sync.Run) }); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, schedule, err)
	}

	if stalled != "-" {
		if _, err := t.cron.AddFunc(stalled, func() { t.runPass("stalled", t.sync.EnqueueStalled) }); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, stalled, err)
		}
	}

	return t, nil
}

// Start запускает планировщик. Проходы выполняются с контекстом ctx.
func (t *Trigger) Start(ctx context.Context) {
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.cron.Start()

	t.logger.Info("trigger started", "entries", len(t.cron.Entries()))
}

// Stop дожидается текущих проходов, останавливает планировщик и отпускает лидерство.
func (t *Trigger) Stop() {
	<-t.cron.Stop().Done()
	t.cancel()

	if t.lock != nil {
		if err := t.lock.Release(context.Background()); err != nil {
			t.logger.Warn("failed to release leader lock", "error", err)
		}
	}

	t.logger.Info("trigger stopped")
}

// runPass выполняет проход, если процесс — лидер.
func (t *Trigger) runPass(name string, pass func(context.Context) Report) {
	if t.ctx.Err() != nil {
		return
	}

	if t.lock != nil {
		ok, err := t.lock.TryAcquire(t.ctx)
		if err != nil {
			t.logger.Error("leader lock failed", "pass", name, "error", err)
			return
		}
		if !ok {
			// не лидер — пропускаем тик
			t.logger.Debug("not a leader, skipping pass", "pass", name)
			return
		}
	}

	pass(telemetry.WithLogger(t.ctx, t.logger.With("pass", name)))
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
