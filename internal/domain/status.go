package domain

// SyncState — состояние синхронизации.
//
// Жизненный цикл:
//
//	SUCCESS/FAILURE → QUEUED (synchronizer) → SYNCING (worker) → SUCCESS
//	                                                           ↘ FAILURE (retried_times++)
//
// Synchronizer сам выставляет только QUEUED. Остальные переходы делает воркер.
type SyncState string

const (
	// SyncStateQueued — ссылка на синхронизацию опубликована в очередь.
	SyncStateQueued SyncState = "queued"

	// SyncStateSyncing — воркер выполняет синхронизацию.
	SyncStateSyncing SyncState = "syncing"

	// SyncStateSuccess — последняя синхронизация завершилась успешно.
	SyncStateSuccess SyncState = "success"

	// SyncStateFailure — последняя синхронизация завершилась ошибкой.
	SyncStateFailure SyncState = "failure"
)

// String возвращает строковое представление SyncState.
func (s SyncState) String() string {
	return string(s)
}

// IsValid проверяет, что значение входит в перечисление.
func (s SyncState) IsValid() bool {
	switch s {
	case SyncStateQueued, SyncStateSyncing, SyncStateSuccess, SyncStateFailure:
		return true
	default:
		return false
	}
}

// ParseSyncState парсит строку в SyncState.
// Неизвестное значение возвращается как есть, проверять через IsValid.
func ParseSyncState(s string) SyncState {
	switch s {
	case "queued", "QUEUED":
		return SyncStateQueued
	case "syncing", "SYNCING":
		return SyncStateSyncing
	case "success", "SUCCESS":
		return SyncStateSuccess
	case "failure", "FAILURE":
		return SyncStateFailure
	default:
		return SyncState(s)
	}
}
