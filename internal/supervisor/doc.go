// Package supervisor следит за жизненным циклом jobs после их запуска.
//
// Supervisor отвечает за:
//   - Получение событий job.completed из очереди jobs.completed
//   - Метрику полного времени выполнения (от постановки в очередь до завершения)
//   - Завершение "зависших" jobs: RUNNING дольше JobTimeout означает,
//     что воркер остановился, не сохранив результат
//
// Завершение зависшего job условное (только из RUNNING), поэтому
// несколько экземпляров Supervisor могут работать одновременно.
package supervisor
