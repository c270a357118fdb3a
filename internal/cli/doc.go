// Package cli реализует инструмент командной строки Copernicus.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Copernicus API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// Через CLI просматривают процессы, запускают jobs, скачивают
// результаты и управляют schedules.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Copernicus API. Разворачивает конверт {"data": ...},
// превращает {"error": ...} в *APIError и следует редиректу
// GET /jobs/{id}/outputs/{name} на presigned URL хранилища.
//
//	client := cli.NewClient("http://localhost:8080")
//	job, err := client.SubmitJob("perfmetrics", cli.SubmitJobRequest{
//		Inputs: map[string]any{"model": "MPI-ESM-LR"},
//	})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения и прогресс — в stderr.
// Это позволяет использовать pipe: copernicus job list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - process: list, describe
//   - job: submit (--wait), list, show, cancel, outputs, download
//   - schedule: list, create, show, update, delete, enable, disable
//
// Каждая группа создаётся через фабричную функцию (NewJobCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
