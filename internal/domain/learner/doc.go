// Package learner содержит доменную модель ученика с точки зрения движка прогресса.
//
// Пакет определяет:
//
//   - Сущности: Learner (только чтение), PauseInterval
//   - Value Objects: SubscriptionState, ActiveDays
//   - Интерфейсы: PauseLedger (журнал пауз), Repository (каталог учеников)
//   - Доменный сервис: ActiveDaysCalculator
//
// # Активные дни
//
// Активные дни - это полные сутки с момента записи минус дни паузы.
// Пока подписка на паузе, счётчик заморожен на начале открытой паузы:
//
//	days := learner.ComputeActiveDays(l, intervals, now)
//	// days.Active не растёт, пока пауза открыта
//
// Дни паузы всегда считаются до той же опорной точки, что и общий счёт,
// поэтому два слагаемых согласованы между собой.
//
// Пакет не создаёт и не закрывает паузы: этим занимается управление подписками.
package learner
