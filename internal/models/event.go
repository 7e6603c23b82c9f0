package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind тип события леджера.
type EventKind string

// Виды событий, публикуемых леджером.
const (
	EventPlanCreated EventKind = "plan_created"
	EventSubscribed  EventKind = "subscribed"
	EventCharged     EventKind = "charged"
	EventCancelled   EventKind = "cancelled"
)

// EventKinds перечисляет все виды событий в порядке их появления в системе.
var EventKinds = []EventKind{EventPlanCreated, EventSubscribed, EventCharged, EventCancelled}

// Event неизменяемая запись журнала о мутации леджера.
// Seq назначается леджером и задаёт полный порядок событий;
// ReferenceID — непрозрачная ссылка на транзакцию для идемпотентного реплея.
// Заполненность остальных полей зависит от вида события.
type Event struct {
	Seq         int64     `json:"seq"`
	Kind        EventKind `json:"kind"`
	ReferenceID string    `json:"reference_id"`

	PlanID     string `json:"plan_id"`
	Merchant   string `json:"merchant,omitempty"`
	Subscriber string `json:"subscriber,omitempty"`
	PlanName   string `json:"plan_name,omitempty"`

	Amount             decimal.Decimal `json:"amount"`
	IntervalSeconds    int64           `json:"interval_seconds,omitempty"`
	SupportsMembership bool            `json:"supports_membership,omitempty"`
	MaxSubscribers     int             `json:"max_subscribers,omitempty"`
	MembershipTokenID  int64           `json:"membership_token_id,omitempty"`
	NextChargeTime     time.Time       `json:"next_charge_time,omitempty"`
	Reason             string          `json:"reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentHistoryEntry запись истории платежей, производная от событий Charged.
type PaymentHistoryEntry struct {
	Subscriber  string          `json:"subscriber"`
	PlanID      string          `json:"plan_id"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
