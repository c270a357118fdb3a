// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с зависимостями (хранилища, реестр процессов, publisher)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, metrics)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - process_handler.go  — /processes
//   - job_handler.go      — /jobs и выдача артефактов
//   - schedule_handler.go — /schedules
//
// Входные параметры job проверяются по описанию процесса при отправке:
// некорректный запрос не попадает в очередь.
package api
