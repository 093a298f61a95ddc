// Package saga реализует координатор саги заказа.
//
// Координатор ведёт заказ через фиксированную последовательность шагов
// (contract-verification → package-registration → route-optimization),
// персистируя состояние после каждого перехода. При терминальном отказе
// шага выполненные шаги компенсируются в обратном порядке (best-effort),
// после чего заказ переводится в FAILED.
//
// Новые заказы поступают через Submit (fire-and-forget после приёма API),
// незавершённые подхватываются периодическим polling'ом из БД — это же
// обеспечивает возобновление после рестарта процесса.
package saga
