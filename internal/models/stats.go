package models

import "github.com/shopspring/decimal"

// GlobalStats глобальные счётчики платформы.
// Все значения строго неубывающие и выводятся только из мутаций леджера.
type GlobalStats struct {
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TotalSubscriptions int64           `json:"total_subscriptions"`
	TotalPlans         int64           `json:"total_plans"`
}

// MerchantStats проекция статистики по одному мерчанту,
// вычисляется из состояния планов и подписок в момент запроса.
type MerchantStats struct {
	Revenue          decimal.Decimal `json:"revenue"`
	ActivePlans      int             `json:"active_plans"`
	TotalSubscribers int             `json:"total_subscribers"`
}

// SchedulerStats текущая статистика планировщика платежей.
type SchedulerStats struct {
	TrackedSubscriptions int     `json:"tracked_subscriptions"`
	TotalAttempts        int64   `json:"total_attempts"`
	Successful           int64   `json:"successful"`
	Failed               int64   `json:"failed"`
	SuccessRate          float64 `json:"success_rate"`
	Running              bool    `json:"running"`
}
