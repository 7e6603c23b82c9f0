package models

// EventFilter параметры выборки недавних событий из архива.
// Пустое строковое поле означает отсутствие фильтра по нему.
type EventFilter struct {
	Subscriber string
	Merchant   string
	Kind       EventKind
	Limit      int
}
