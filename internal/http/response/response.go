// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Ошибки леджера отдаются
// строковым видом ("kind"), чтобы классификация переживала границу процесса
// и клиент мог восстановить типизированную ошибку.
package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/sonicpay/subscrypt/internal/ledger"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status — статус запроса ("OK" или "Error").
// Поле Error — вид или текст ошибки (опционально, при неуспехе).
// Поле Data — данные ответа (опционально, при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ErrorKind возвращает Response, где в поле Error записан строковый вид
// классифицированной ошибки леджера.
func ErrorKind(kind string) Response {
	return Response{
		Status: StatusError,
		Error:  kind,
	}
}

// StatusForKind отображает вид ошибки леджера в HTTP-статус.
func StatusForKind(kind string) int {
	switch ledger.FromKind(kind) {
	case ledger.ErrValidation:
		return http.StatusUnprocessableEntity
	case ledger.ErrPlanNotFound, ledger.ErrNoActiveSubscription:
		return http.StatusNotFound
	case ledger.ErrUnauthorized:
		return http.StatusForbidden
	case ledger.ErrPlanInactive, ledger.ErrPlanFull, ledger.ErrDuplicateSubscription,
		ledger.ErrNotDue, ledger.ErrInsufficientFunds, ledger.ErrInsufficientAllowance,
		ledger.ErrUnsupportedToken:
		return http.StatusConflict
	case ledger.ErrTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "alphanum":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers and letters", err.Field()))
		case "numeric":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers", err.Field()))
		case "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be greater than zero", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is below the allowed minimum", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}
