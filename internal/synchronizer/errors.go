package synchronizer

import "errors"

// Ошибки synchronizer'а.
var (
	// ErrSkipped — запись перестала подходить между выборкой и захватом.
	ErrSkipped = errors.New("synchronization skipped")

	// ErrPublishFailed — публикация в очередь не удалась.
	ErrPublishFailed = errors.New("publish failed")

	// ErrUnknownStrategy — неизвестная стратегия dispatch.
	ErrUnknownStrategy = errors.New("unknown dispatch strategy")

	// ErrInvalidSchedule — некорректная cron-спецификация.
	ErrInvalidSchedule = errors.New("invalid schedule")
)
