// Package cli реализует команды synchronizer'а.
//
// # Команды
//
//   - run: один обычный проход (--force-all: все SUCCESS и SYNCING)
//   - stalled: повторная постановка синхронизаций, зависших в SYNCING
//   - status: список синхронизаций с отметками DUE и STALLED
//   - serve: проходы по расписанию (robfig/cron), /healthz и /metrics
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей envFn и outputFn: конфигурация и Output создаются лениво,
// после парсинга PersistentFlags.
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, логи и ошибки в stderr:
//
//	synchronizer status --json | jq '.[] | select(.stalled)'
//
// run и stalled завершаются с ненулевым кодом, если выборка не удалась.
package cli
