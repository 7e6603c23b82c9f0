package ledger

import "errors"

// Классифицированные ошибки леджера. Любой отказ операции возвращает
// одну из этих ошибок (возможно, обёрнутую), чтобы вызывающие слои
// могли отличать постоянные отказы от временных.
var (
	ErrValidation            = errors.New("validation error")
	ErrPlanNotFound          = errors.New("plan not found")
	ErrPlanInactive          = errors.New("plan inactive")
	ErrPlanFull              = errors.New("plan full")
	ErrDuplicateSubscription = errors.New("duplicate subscription")
	ErrNoActiveSubscription  = errors.New("no active subscription")
	ErrNotDue                = errors.New("payment not due")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnsupportedToken      = errors.New("unsupported settlement token")
	ErrUnauthorized          = errors.New("unauthorized")
	// ErrTransient помечает сетевые сбои и таймауты: вызов мог как
	// провалиться, так и зафиксироваться, поэтому перед повтором
	// требуется перечитать авторитетное состояние.
	ErrTransient = errors.New("transient network error")
	ErrUnknown   = errors.New("unknown error")
)

var kinds = map[string]error{
	"validation_error":       ErrValidation,
	"plan_not_found":         ErrPlanNotFound,
	"plan_inactive":          ErrPlanInactive,
	"plan_full":              ErrPlanFull,
	"duplicate_subscription": ErrDuplicateSubscription,
	"no_active_subscription": ErrNoActiveSubscription,
	"not_due":                ErrNotDue,
	"insufficient_funds":     ErrInsufficientFunds,
	"insufficient_allowance": ErrInsufficientAllowance,
	"unsupported_token":      ErrUnsupportedToken,
	"unauthorized":           ErrUnauthorized,
	"transient":              ErrTransient,
	"unknown":                ErrUnknown,
}

// Kind возвращает строковый вид классифицированной ошибки.
// Используется в HTTP-ответах и записях истории платежей,
// чтобы классификация переживала границу процесса.
func Kind(err error) string {
	for kind, sentinel := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return "unknown"
}

// FromKind восстанавливает классифицированную ошибку из строкового вида.
// Неизвестный вид отображается в ErrUnknown.
func FromKind(kind string) error {
	if err, ok := kinds[kind]; ok {
		return err
	}
	return ErrUnknown
}

// IsTransient сообщает, является ли сбой временным: такие сбои повторяются
// на следующем цикле без вмешательства оператора.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
