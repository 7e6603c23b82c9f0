package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription представляет запись о подписке пользователя на план.
// Запись создаётся операцией Subscribe и мутируется только леджером:
// ProcessPayment сдвигает NextChargeTime/LastChargeTime и наращивает TotalPaid.
type Subscription struct {
	Subscriber        string          `json:"subscriber"`
	PlanID            string          `json:"plan_id"`
	Active            bool            `json:"active"`
	NextChargeTime    time.Time       `json:"next_charge_time"`
	LastChargeTime    time.Time       `json:"last_charge_time"`
	TotalPaid         decimal.Decimal `json:"total_paid"`
	MembershipTokenID int64           `json:"membership_token_id,omitempty"`
	// FailedCharges считает подряд идущие неуспешные списания,
	// сбрасывается при успешном платеже. Используется политикой
	// деактивации просроченных подписок.
	FailedCharges int `json:"failed_charges,omitempty"`
}

// DummySubscribe используется для приёма JSON-запроса на оформление подписки.
type DummySubscribe struct {
	Subscriber string `json:"subscriber" validate:"required"`
	PlanID     string `json:"plan_id" validate:"required"`
	Token      string `json:"token" validate:"required"`
}

// DummyCharge используется для приёма JSON-запроса на проведение платежа.
type DummyCharge struct {
	Subscriber string `json:"subscriber" validate:"required"`
	Token      string `json:"token" validate:"required"`
}

// DummyBatch используется для приёма JSON-запроса релеера на пакетное списание.
// Amounts необязательны: авторитетной суммой всегда остаётся цена плана.
type DummyBatch struct {
	Relayer     string   `json:"relayer" validate:"required"`
	Subscribers []string `json:"subscribers" validate:"required"`
	Token       string   `json:"token" validate:"required"`
	Amounts     []string `json:"amounts"`
}
