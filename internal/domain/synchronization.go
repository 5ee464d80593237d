package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultStallingMaxTime — сколько синхронизация может находиться в SYNCING,
// прежде чем считаться брошенной воркером.
const DefaultStallingMaxTime = 3 * time.Hour

// DefaultMaxRetries — лимит подряд неудачных попыток, после которого
// синхронизация в FAILURE больше не выбирается.
const DefaultMaxRetries = 3

// Synchronization — запись о синхронизации таблицы с удалённым источником.
//
// Запись создаётся и удаляется вне synchronizer'а. Synchronizer только читает
// её и переводит state в QUEUED.
type Synchronization struct {
	// ID — уникальный идентификатор, ключ корреляции между строкой и сообщением в очереди.
	ID uuid.UUID `json:"id"`

	// Name — имя для логов.
	Name string `json:"name"`

	// State — текущее состояние.
	State SyncState `json:"state"`

	// RunAt — время, начиная с которого синхронизацию можно запускать.
	RunAt *time.Time `json:"run_at,omitempty"`

	// RanAt — время последнего старта выполнения (для обнаружения зависших).
	RanAt *time.Time `json:"ran_at,omitempty"`

	// RetriedTimes — количество неудачных попыток подряд.
	RetriedTimes int `json:"retried_times"`
}

// IsDue проверяет, подходит ли запись для обычного dispatch.
func (s *Synchronization) IsDue(now time.Time, maxRetries int) bool {
	if s.RunAt == nil || s.RunAt.After(now) {
		return false
	}
	switch s.State {
	case SyncStateSuccess:
		return true
	case SyncStateFailure:
		return s.RetriedTimes < maxRetries
	default:
		return false
	}
}

// IsForceEligible проверяет, подходит ли запись для принудительного прогона.
func (s *Synchronization) IsForceEligible() bool {
	return s.State == SyncStateSuccess || s.State == SyncStateSyncing
}

// IsStalled проверяет, что запись висит в SYNCING дольше threshold.
func (s *Synchronization) IsStalled(now time.Time, threshold time.Duration) bool {
	if s.State != SyncStateSyncing || s.RanAt == nil {
		return false
	}
	return now.Sub(*s.RanAt) > threshold
}

// Ref возвращает ссылку на запись в том виде, в каком её выбирает Selector.
func (s *Synchronization) Ref() JobRef {
	return JobRef{ID: s.ID, Name: s.Name, State: s.State}
}

// JobRef — строка выборки: то, что нужно для dispatch и логов.
type JobRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	// State — состояние на момент выборки. Используется, чтобы вернуть
	// запись обратно, если публикация не удалась.
	State SyncState `json:"state"`
}

// SelectMode — режим выборки записей для dispatch.
type SelectMode string

const (
	// SelectDue — обычный проход: run_at наступил, ретраи не исчерпаны.
	SelectDue SelectMode = "due"

	// SelectForceAll — административный прогон всех SUCCESS и SYNCING без учёта run_at.
	SelectForceAll SelectMode = "force_all"

	// SelectStalled — зависшие в SYNCING дольше порога.
	SelectStalled SelectMode = "stalled"
)

// String возвращает строковое представление SelectMode.
func (m SelectMode) String() string {
	return string(m)
}
