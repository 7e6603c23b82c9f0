// Package models содержит доменные структуры расчетного леджера:
// планы, подписки, события и агрегированную статистику,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan представляет тарифный план мерчанта с рекуррентным списанием.
// PlanID уникален и неизменяем после создания. После создания меняются
// только поля Active и CurrentSubscribers: пересмотр цены или интервала
// возможен лишь публикацией нового плана.
type Plan struct {
	PlanID             string          `json:"plan_id"`
	Merchant           string          `json:"merchant"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price"`
	Interval           time.Duration   `json:"interval"`
	Active             bool            `json:"active"`
	SupportsMembership bool            `json:"supports_membership"`
	MaxSubscribers     int             `json:"max_subscribers"`
	CurrentSubscribers int             `json:"current_subscribers"`
}

// DummyPlan используется для приёма данных из JSON-запроса на создание плана,
// прежде чем конвертировать их в Plan. Цена приходит строкой,
// чтобы её можно было валидировать и парсить вручную.
type DummyPlan struct {
	Merchant           string `json:"merchant" validate:"required"`
	Name               string `json:"name" validate:"required"`
	Price              string `json:"price" validate:"required"`          // Десятичная строка, > 0
	IntervalSeconds    int64  `json:"interval_seconds" validate:"required,gt=0"`
	SupportsMembership bool   `json:"supports_membership"`
	MaxSubscribers     int    `json:"max_subscribers" validate:"required,gt=0"`
}

// DummyDeactivate используется для приёма JSON-запроса на деактивацию плана.
// Идентификатор плана приходит в URL, мерчант — в теле для проверки владения.
type DummyDeactivate struct {
	Merchant string `json:"merchant" validate:"required"`
}

// DummyToken используется для приёма JSON-запроса на добавление расчётного токена.
type DummyToken struct {
	Token string `json:"token" validate:"required"`
}
