// Package scheduler запускает диагностические процессы по расписанию.
//
// Scheduler периодически находит schedules с истекшим next_due_at
// и создаёт для каждого QUEUED job.
//
// Структура:
//   - scheduler.go — Tick и обработка одного schedule
//   - cron.go      — cron-выражения, интервалы и проверка расписаний
//
// Для одного schedule и одного момента времени создаётся ровно один job:
// ключ идемпотентности "<schedule id>_<next_due_at>" уникален в БД.
//
// Scheduler не реализует leader election. Это делается в main.go
// через pg_try_advisory_lock; Tick вызывается только лидером.
package scheduler
