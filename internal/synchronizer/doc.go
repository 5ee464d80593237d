// Package synchronizer находит синхронизации, которым пора выполняться,
// переводит их в QUEUED и публикует ссылки на них в очередь воркеров.
//
// Структура:
//   - selector.go     — выбор записей по режиму (due, force_all, stalled)
//   - dispatcher.go   — захват записи, публикация, откат при ошибке
//   - synchronizer.go — проходы Run, Fetch, EnqueueStalled
//   - trigger.go      — периодический запуск проходов по cron-спецификации
//
// Использование:
//
//	s := synchronizer.New(synchronizer.Config{
//	    Store:     syncRepo,
//	    Publisher: publisher,
//	    Logger:    logger,
//	})
//
//	report := s.Run(ctx)            // обычный проход
//	report = s.Fetch(ctx, true)     // принудительный прогон всех
//	report = s.EnqueueStalled(ctx)  // зависшие в SYNCING
//
// Проход никогда не паникует и не возвращает ошибку наружу: ошибка выборки
// логируется и превращается в пустую выборку (Report.Err), ошибка одной
// записи не мешает остальным.
//
// Конкурентные проходы:
//
// Захват записи — условный UPDATE с тем же условием, что и выборка,
// поэтому два пересекающихся прохода не поставят одну запись дважды.
// Стратегия lenient воспроизводит старое поведение (публикация, затем
// безусловный UPDATE) и такой гарантии не даёт.
package synchronizer
