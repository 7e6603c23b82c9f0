// Package scheduler реализует автоматический планировщик рекуррентных платежей.
// Планировщик ведёт локальный реестр подписок и по таймеру проводит
// причитающиеся списания через леджер. Реестр — кеш, а не источник истины:
// периодическая сверка с авторитетным состоянием леджера ограничивает
// накопление расхождений.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/metrics"
	"github.com/sonicpay/subscrypt/internal/models"
)

// LedgerAPI операции леджера, нужные планировщику. Вызовы могут завершаться
// временными сбоями (таймаут, сеть): такой сбой не считается подтверждённым
// отказом леджера.
type LedgerAPI interface {
	ProcessPayment(ctx context.Context, subscriber, token string) (models.MutationResult, error)
	GetUserSubscription(ctx context.Context, subscriber string) (*models.Subscription, error)
}

// Entry запись локального реестра планировщика об одной подписке.
type Entry struct {
	PlanID         string
	Amount         decimal.Decimal
	NextChargeTime time.Time
	Interval       time.Duration
	Active         bool
}

// Attempt запись истории об одной попытке списания.
type Attempt struct {
	Subscriber  string
	PlanID      string
	Amount      decimal.Decimal
	ReferenceID string
	Success     bool
	Error       string
	At          time.Time
}

// Config параметры планировщика.
type Config struct {
	SettlementToken   string
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	RequestTimeout    time.Duration
}

// Scheduler периодически проводит причитающиеся платежи.
// Реестр мутируется только самим планировщиком (один писатель).
type Scheduler struct {
	api LedgerAPI
	log *slog.Logger
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	registry map[string]*Entry
	history  []Attempt
	attempts int64
	success  int64
	failed   int64

	running  bool
	sweeping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New создает планировщик. Интервалы по умолчанию: цикл каждые 5 минут,
// сверка каждые 30 минут.
func New(api LedgerAPI, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Scheduler{
		api:      api,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		registry: make(map[string]*Entry),
	}
}

// Start запускает периодический цикл. Повторный запуск уже работающего
// планировщика — no-op с записью в лог, а не ошибка.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("scheduler already running")
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("starting payment scheduler",
		slog.Duration("sweep_interval", s.cfg.SweepInterval))
	go s.run(ctx)
}

// Stop останавливает таймер. Реестр и история сохраняются для инспекции.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Info("scheduler is not running")
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("payment scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()
	reconcile := time.NewTicker(s.cfg.ReconcileInterval)
	defer reconcile.Stop()

	s.RunSweep(ctx)
	for {
		select {
		case <-sweep.C:
			s.RunSweep(ctx)
		case <-reconcile.C:
			s.Reconcile(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Track добавляет подписку в локальный реестр.
// Вызывается при событии Subscribed или явной регистрацией.
func (s *Scheduler) Track(subscriber, planID string, amount decimal.Decimal, nextChargeTime time.Time, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[subscriber] = &Entry{
		PlanID:         planID,
		Amount:         amount,
		NextChargeTime: nextChargeTime,
		Interval:       interval,
		Active:         true,
	}
	metrics.TrackedSubscriptions.Set(float64(len(s.registry)))
	s.log.Info("tracking subscription",
		slog.String("subscriber", subscriber), slog.String("plan_id", planID))
}

// Untrack удаляет подписку из реестра.
func (s *Scheduler) Untrack(subscriber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registry, subscriber)
	metrics.TrackedSubscriptions.Set(float64(len(s.registry)))
	s.log.Info("stopped tracking subscription", slog.String("subscriber", subscriber))
}

// ObserveEvents сопровождает реестр по потоку событий леджера:
// Subscribed добавляет запись, Cancelled удаляет.
func (s *Scheduler) ObserveEvents(ctx context.Context, events <-chan models.Event) {
	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev.Kind {
				case models.EventSubscribed:
					s.Track(ev.Subscriber, ev.PlanID, ev.Amount, ev.NextChargeTime,
						time.Duration(ev.IntervalSeconds)*time.Second)
				case models.EventCancelled:
					s.Untrack(ev.Subscriber)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RunSweep выполняет один цикл: собирает причитающиеся записи и проводит
// каждое списание независимо. Защита от реентерабельности гарантирует,
// что новый цикл не начнётся, пока не завершился предыдущий.
func (s *Scheduler) RunSweep(ctx context.Context) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.log.Warn("sweep already in flight, skipping")
		return
	}
	s.sweeping = true
	due := s.dueEntriesLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
		metrics.SweepsTotal.Inc()
	}()

	if len(due) == 0 {
		s.log.Info("no payments due")
		return
	}
	s.log.Info("processing due payments", slog.Int("count", len(due)))

	for _, subscriber := range due {
		s.chargeOne(ctx, subscriber)
	}
}

func (s *Scheduler) dueEntriesLocked() []string {
	now := s.now()
	var due []string
	for subscriber, entry := range s.registry {
		if entry.Active && !entry.NextChargeTime.After(now) {
			due = append(due, subscriber)
		}
	}
	return due
}

// chargeOne проводит списание по одной записи. Отказ записи не прерывает
// цикл для остальных. Локальная оценка NextChargeTime сдвигается только
// после подтверждённого успеха: временный сбой оставляет запись
// причитающейся для следующего цикла.
func (s *Scheduler) chargeOne(ctx context.Context, subscriber string) {
	s.mu.Lock()
	entry, ok := s.registry[subscriber]
	if !ok {
		s.mu.Unlock()
		return
	}
	planID, amount := entry.PlanID, entry.Amount
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.api.ProcessPayment(callCtx, subscriber, s.cfg.SettlementToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++

	attempt := Attempt{
		Subscriber: subscriber,
		PlanID:     planID,
		Amount:     amount,
		At:         s.now(),
	}

	switch {
	case err == nil:
		s.success++
		attempt.Success = true
		attempt.ReferenceID = res.ReferenceID
		if entry, ok := s.registry[subscriber]; ok {
			entry.NextChargeTime = entry.NextChargeTime.Add(entry.Interval)
		}
		metrics.SweepPayments.WithLabelValues("success").Inc()
		s.log.Info("payment processed", slog.String("subscriber", subscriber))

	case ledger.IsTransient(err):
		// Вызов мог зафиксироваться на стороне леджера: ничего не сдвигаем,
		// сверка и следующий цикл разберутся по авторитетному состоянию.
		s.failed++
		attempt.Error = "transient"
		metrics.SweepPayments.WithLabelValues("transient").Inc()
		s.log.Warn("transient failure, will retry next cycle",
			slog.String("subscriber", subscriber), sl.Err(err))

	default:
		s.failed++
		attempt.Error = ledger.Kind(err)
		metrics.SweepPayments.WithLabelValues("failed").Inc()
		s.log.Warn("payment failed",
			slog.String("subscriber", subscriber), slog.String("kind", attempt.Error))
		if errors.Is(err, ledger.ErrNoActiveSubscription) || errors.Is(err, ledger.ErrPlanInactive) {
			if entry, ok := s.registry[subscriber]; ok {
				entry.Active = false
			}
		}
		if errors.Is(err, ledger.ErrNotDue) {
			// Локальная оценка обогнала леджер: выправляем по авторитетному полю.
			s.reconcileOneLocked(ctx, subscriber)
		}
	}

	s.history = append(s.history, attempt)
}

// Reconcile сверяет каждую запись реестра с авторитетным состоянием леджера
// и перезаписывает локальную оценку NextChargeTime.
func (s *Scheduler) Reconcile(ctx context.Context) {
	s.mu.Lock()
	subscribers := make([]string, 0, len(s.registry))
	for subscriber := range s.registry {
		subscribers = append(subscribers, subscriber)
	}
	s.mu.Unlock()

	for _, subscriber := range subscribers {
		s.mu.Lock()
		s.reconcileOneLocked(ctx, subscriber)
		s.mu.Unlock()
	}
	s.log.Info("registry reconciled", slog.Int("entries", len(subscribers)))
}

func (s *Scheduler) reconcileOneLocked(ctx context.Context, subscriber string) {
	entry, ok := s.registry[subscriber]
	if !ok {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	sub, err := s.api.GetUserSubscription(callCtx, subscriber)
	switch {
	case err == nil:
		entry.NextChargeTime = sub.NextChargeTime
		entry.Active = sub.Active
	case errors.Is(err, ledger.ErrNoActiveSubscription):
		entry.Active = false
	case ledger.IsTransient(err):
		s.log.Warn("reconcile skipped on transient failure",
			slog.String("subscriber", subscriber), sl.Err(err))
	default:
		s.log.Warn("failed to reconcile entry",
			slog.String("subscriber", subscriber), sl.Err(err))
	}
}

// Entry возвращает копию записи реестра.
func (s *Scheduler) Entry(subscriber string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.registry[subscriber]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// History возвращает копию истории попыток, опционально по одному подписчику.
func (s *Scheduler) History(subscriber string) []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subscriber == "" {
		return append([]Attempt(nil), s.history...)
	}
	var out []Attempt
	for _, a := range s.history {
		if a.Subscriber == subscriber {
			out = append(out, a)
		}
	}
	return out
}

// Stats возвращает текущую статистику планировщика.
func (s *Scheduler) Stats() models.SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.SchedulerStats{
		TrackedSubscriptions: len(s.registry),
		TotalAttempts:        s.attempts,
		Successful:           s.success,
		Failed:               s.failed,
		Running:              s.running,
	}
	if s.attempts > 0 {
		stats.SuccessRate = float64(s.success) / float64(s.attempts) * 100
	}
	return stats
}

// SetClock подменяет источник времени. Используется тестами.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
