package models

import "github.com/shopspring/decimal"

// MutationResult структурированный результат мутирующего вызова леджера.
// Error содержит классифицированный вид ошибки, а не сырой текст нижнего слоя.
type MutationResult struct {
	Success     bool   `json:"success"`
	ReferenceID string `json:"reference_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchEntryResult результат обработки одной записи пакетного списания.
// Неуспех одной записи не влияет на обработку остальных.
type BatchEntryResult struct {
	Subscriber  string          `json:"subscriber"`
	Success     bool            `json:"success"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// GaslessCapability результат проверки возможности безгазового платежа:
// комбинация доступности релеера и текущих allowance/balance
// пользователя относительно цены плана.
type GaslessCapability struct {
	CanPayGasless bool            `json:"can_pay_gasless"`
	FeeMAvailable bool            `json:"feem_available"`
	HasAllowance  bool            `json:"has_allowance"`
	HasBalance    bool            `json:"has_balance"`
	Allowance     decimal.Decimal `json:"allowance"`
	Balance       decimal.Decimal `json:"balance"`
	Required      decimal.Decimal `json:"required"`
}
