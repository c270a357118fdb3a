// Package worker выполняет диагностические jobs.
//
// # Обзор
//
// Worker — stateless компонент, который:
//
//   - Получает jobs из очереди jobs.ready (event-driven)
//   - Периодически проверяет QUEUED jobs в БД (polling fallback)
//   - Выполняет процесс job в собственной рабочей директории
//   - Сохраняет прогресс выполнения в БД
//   - Публикует артефакты (локально или в объектное хранилище)
//   - Отправляет событие job.completed
//
// Workers масштабируются горизонтально: job захватывается атомарно
// (QUEUED → RUNNING), поэтому один job выполняет ровно один воркер.
//
//	w := worker.New(worker.Config{
//	    Jobs:        jobRepo,
//	    Publisher:   publisher,
//	    Conn:        mqConn,
//	    Processes:   registry,
//	    Store:       store,
//	    WorkdirRoot: cfg.Worker.WorkdirRoot,
//	    Logger:      logger,
//	})
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка job
//
//  1. Загрузка job, проверка статуса QUEUED
//  2. Захват: RUNNING + рабочая директория <WORKDIR_ROOT>/<job id>
//  3. Разбор входных параметров по описанию процесса
//  4. Выполнение процесса, прогресс пишется в БД
//  5. Успех → публикация артефактов, SUCCEEDED
//  6. Ошибка → FAILED, наружу отдаётся только лог
//  7. Событие job.completed
//
// Повторных попыток нет: запуск toolchain никогда не переиспользует
// рабочую директорию.
package worker
