// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - job.ready      — job поставлен в очередь и ждёт воркера (API, scheduler → worker)
//   - job.completed  — job завершён (worker, supervisor → supervisor)
//
// Exchanges:
//   - copernicus.jobs — события jobs
//   - copernicus.dlq  — dead letter queue
package mq
