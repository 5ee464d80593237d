// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, publisher confirms)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация ссылок на синхронизации
//
// Типы сообщений:
//   - synchronization.enqueued — синхронизация поставлена в очередь, payload {job_id}
//
// Exchanges:
//   - synchronizer.jobs — ссылки на синхронизации (потребитель: sync-воркеры)
//   - synchronizer.dlq  — dead letter queue
package mq
