// Package pipeline проводит job через фиксированный упорядоченный список стадий.
//
// # Обзор
//
// Executor получает job (через интерфейс Tracker), список стадий и
// выполняет их строго по одной. Перед каждой стадией прогресс выставляется
// в index/total*100, после успешного завершения оркестратор выставляет 100.
//
// # Стадии
//
// Стадия — любая реализация Stage (или StageFunc). Registry хранит стадии
// по имени, так что реальную работу можно подставить без изменения
// логики последовательности:
//
//	reg := pipeline.NewDefaultRegistry(time.Second, 3*time.Second)
//	reg.Register(domain.StageProcess, &pipeline.WebhookStage{URL: "http://render/process"})
//
// Реализации:
//   - SimulatedStage — задержка, имитирующая работу
//   - WebhookStage — HTTP-вызов внешнего сервиса
//
// # Качество
//
// После QUALITY_ASSURANCE executor вызывает Scorer. Оценка ниже порога
// (по умолчанию 0.8) не откатывает job на предыдущие стадии: job завершается
// COMPLETED с Success=false.
//
// # Ошибки
//
// Ошибка стадии переводит job в FAILED (ErrStageExecution) без повторов:
// стадии не считаются безопасно перезапускаемыми.
package pipeline
