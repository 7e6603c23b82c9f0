// Package reconciler поддерживает материализованную проекцию состояния леджера,
// применяя события журнала в порядке поступления, и раздаёт их подписанным
// слушателям. Контракт корректности: реплей всей истории событий с нуля
// восстанавливает проекцию, совпадающую с авторитетным состоянием леджера.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonicpay/subscrypt/internal/models"
)

// Archive отвечает на запросы ограниченного окна недавних событий
// без постоянной подписки на поток.
type Archive interface {
	ListRecentEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

// wildcard ключ регистрации слушателя на все виды событий.
const wildcard models.EventKind = "*"

type listener struct {
	ch     chan models.Event
	filter func(models.Event) bool
}

// Reconciler применяет события к локальной проекции и раздаёт их слушателям.
// Проекция мутируется только циклом применения (один писатель);
// чтения защищены мьютексом проекции.
type Reconciler struct {
	log     *slog.Logger
	archive Archive

	listMu    sync.Mutex
	listeners map[models.EventKind]map[int]*listener
	nextID    int

	mu              sync.RWMutex
	plans           map[string]*models.Plan
	planOrder       []string
	subs            map[string][]*models.Subscription
	merchantRevenue map[string]decimal.Decimal
	stats           models.GlobalStats
	lastSeq         int64
}

// New создает реконсилятор с пустой проекцией. archive может быть nil:
// тогда недоступны только запросы недавних событий.
func New(archive Archive, log *slog.Logger) *Reconciler {
	return &Reconciler{
		log:             log,
		archive:         archive,
		listeners:       make(map[models.EventKind]map[int]*listener),
		plans:           make(map[string]*models.Plan),
		subs:            make(map[string][]*models.Subscription),
		merchantRevenue: make(map[string]decimal.Decimal),
	}
}

// HandleEvent применяет событие к проекции и раздаёт его слушателям.
// Идемпотентен по Seq: повторная доставка уже применённого события
// не меняет проекцию и не раздаётся повторно.
func (r *Reconciler) HandleEvent(ev models.Event) error {
	applied := r.apply(ev)
	if !applied {
		r.log.Debug("skipping already applied event", slog.Int64("seq", ev.Seq))
		return nil
	}
	r.dispatch(ev)
	return nil
}

// Replay применяет пакет исторических событий без раздачи слушателям.
// Используется для наверстывания после простоя и в проверках сверки.
func (r *Reconciler) Replay(events []models.Event) {
	for _, ev := range events {
		r.apply(ev)
	}
}

func (r *Reconciler) apply(ev models.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Seq <= r.lastSeq {
		return false
	}
	r.lastSeq = ev.Seq

	switch ev.Kind {
	case models.EventPlanCreated:
		r.plans[ev.PlanID] = &models.Plan{
			PlanID:             ev.PlanID,
			Merchant:           ev.Merchant,
			Name:               ev.PlanName,
			Price:              ev.Amount,
			Interval:           time.Duration(ev.IntervalSeconds) * time.Second,
			Active:             true,
			SupportsMembership: ev.SupportsMembership,
			MaxSubscribers:     ev.MaxSubscribers,
		}
		r.planOrder = append(r.planOrder, ev.PlanID)
		r.stats.TotalPlans++

	case models.EventSubscribed:
		sub := &models.Subscription{
			Subscriber:        ev.Subscriber,
			PlanID:            ev.PlanID,
			Active:            true,
			NextChargeTime:    ev.NextChargeTime,
			LastChargeTime:    ev.OccurredAt,
			TotalPaid:         ev.Amount,
			MembershipTokenID: ev.MembershipTokenID,
		}
		r.subs[ev.Subscriber] = append(r.subs[ev.Subscriber], sub)
		if plan, ok := r.plans[ev.PlanID]; ok {
			plan.CurrentSubscribers++
		}
		r.stats.TotalSubscriptions++

	case models.EventCharged:
		if sub := r.activeSubscriptionLocked(ev.Subscriber); sub != nil {
			sub.LastChargeTime = ev.OccurredAt
			sub.NextChargeTime = ev.NextChargeTime
			sub.TotalPaid = sub.TotalPaid.Add(ev.Amount)
			sub.FailedCharges = 0
		}
		r.merchantRevenue[ev.Merchant] = r.revenueOfLocked(ev.Merchant).Add(ev.Amount)
		r.stats.TotalRevenue = r.stats.TotalRevenue.Add(ev.Amount)

	case models.EventCancelled:
		if sub := r.activeSubscriptionLocked(ev.Subscriber); sub != nil {
			sub.Active = false
			if plan, ok := r.plans[sub.PlanID]; ok && plan.CurrentSubscribers > 0 {
				plan.CurrentSubscribers--
			}
		}

	default:
		r.log.Warn("unknown event kind", slog.String("kind", string(ev.Kind)))
	}
	return true
}

// dispatch раздаёт событие слушателям его вида и wildcard-слушателям.
// Отказ одного слушателя (переполненный буфер) изолирован: событие
// вытесняет самое старое из его буфера и не задерживает остальных.
func (r *Reconciler) dispatch(ev models.Event) {
	r.listMu.Lock()
	defer r.listMu.Unlock()

	for _, kind := range []models.EventKind{ev.Kind, wildcard} {
		for _, l := range r.listeners[kind] {
			if l.filter != nil && !l.filter(ev) {
				continue
			}
			r.deliver(l, ev)
		}
	}
}

// deliver кладёт событие в буфер слушателя, вытесняя самое старое
// при переполнении (политика drop-oldest).
func (r *Reconciler) deliver(l *listener, ev models.Event) {
	select {
	case l.ch <- ev:
		return
	default:
	}
	select {
	case dropped := <-l.ch:
		r.log.Warn("listener buffer overflow, dropping oldest event",
			slog.Int64("dropped_seq", dropped.Seq))
	default:
	}
	select {
	case l.ch <- ev:
	default:
	}
}

// RegisterListener регистрирует слушателя на вид события (или "*" для всех)
// и возвращает его идентификатор и канал доставки с ограниченным буфером.
func (r *Reconciler) RegisterListener(kind models.EventKind, buffer int) (int, <-chan models.Event) {
	return r.register(kind, buffer, nil)
}

// WatchUserSubscription регистрирует слушателя всех событий одного подписчика.
func (r *Reconciler) WatchUserSubscription(subscriber string, buffer int) (int, <-chan models.Event) {
	return r.register(wildcard, buffer, func(ev models.Event) bool {
		return ev.Subscriber == subscriber
	})
}

// WatchMerchantEvents регистрирует слушателя всех событий одного мерчанта.
func (r *Reconciler) WatchMerchantEvents(merchant string, buffer int) (int, <-chan models.Event) {
	return r.register(wildcard, buffer, func(ev models.Event) bool {
		return ev.Merchant == merchant
	})
}

func (r *Reconciler) register(kind models.EventKind, buffer int, filter func(models.Event) bool) (int, <-chan models.Event) {
	if buffer <= 0 {
		buffer = 16
	}
	r.listMu.Lock()
	defer r.listMu.Unlock()

	r.nextID++
	id := r.nextID
	if r.listeners[kind] == nil {
		r.listeners[kind] = make(map[int]*listener)
	}
	l := &listener{ch: make(chan models.Event, buffer), filter: filter}
	r.listeners[kind][id] = l
	r.log.Debug("listener registered", slog.String("kind", string(kind)), slog.Int("id", id))
	return id, l.ch
}

// RemoveListener снимает регистрацию слушателя. Незнакомый идентификатор
// игнорируется; состояние леджера регистрация не затрагивает.
func (r *Reconciler) RemoveListener(kind models.EventKind, id int) {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	if ls, ok := r.listeners[kind]; ok {
		delete(ls, id)
	}
}

// GetRecentEvents отвечает на запрос ограниченного окна недавних событий
// подписчика или мерчанта из архива.
func (r *Reconciler) GetRecentEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	const op = "reconciler.GetRecentEvents"
	if r.archive == nil {
		return nil, fmt.Errorf("%s: archive is not configured", op)
	}
	events, err := r.archive.ListRecentEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

// Plan возвращает копию плана из проекции.
func (r *Reconciler) Plan(planID string) (*models.Plan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[planID]
	if !ok {
		return nil, false
	}
	cp := *plan
	return &cp, true
}

// ActiveSubscription возвращает копию активной подписки из проекции.
func (r *Reconciler) ActiveSubscription(subscriber string) (*models.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub := r.activeSubscriptionLocked(subscriber)
	if sub == nil {
		return nil, false
	}
	cp := *sub
	return &cp, true
}

// GlobalStats возвращает глобальные счётчики проекции.
func (r *Reconciler) GlobalStats() models.GlobalStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// MerchantStats возвращает статистику мерчанта, вычисленную из проекции
// тем же способом, что и в леджере.
func (r *Reconciler) MerchantStats(merchant string) models.MerchantStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := models.MerchantStats{Revenue: r.revenueOfLocked(merchant)}
	for _, plan := range r.plans {
		if plan.Merchant != merchant {
			continue
		}
		if plan.Active {
			stats.ActivePlans++
		}
		stats.TotalSubscribers += plan.CurrentSubscribers
	}
	return stats
}

// LastSeq возвращает номер последнего применённого события.
func (r *Reconciler) LastSeq() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeq
}

// ListenerCount возвращает суммарное число зарегистрированных слушателей.
func (r *Reconciler) ListenerCount() int {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	n := 0
	for _, ls := range r.listeners {
		n += len(ls)
	}
	return n
}

func (r *Reconciler) activeSubscriptionLocked(subscriber string) *models.Subscription {
	for _, sub := range r.subs[subscriber] {
		if sub.Active {
			return sub
		}
	}
	return nil
}

func (r *Reconciler) revenueOfLocked(merchant string) decimal.Decimal {
	if rev, ok := r.merchantRevenue[merchant]; ok {
		return rev
	}
	return decimal.Zero
}
