// Package telemetry обеспечивает наблюдаемость synchronizer'а.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики проходов и dispatch
//
// Метрики экспортируются на /metrics в режиме serve.
package telemetry
