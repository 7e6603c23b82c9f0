// Package ledger реализует авторитетную машину состояний расчетного леджера:
// реестр планов, журнал подписок и агрегированную бухгалтерию.
// Все мутирующие операции атомарны и полностью сериализованы между собой,
// поэтому счётчики CurrentSubscribers, TotalRevenue и TotalSubscriptions
// не требуют дополнительной координации.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sonicpay/subscrypt/internal/bank"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/metrics"
	"github.com/sonicpay/subscrypt/internal/models"
)

// EventSink принимает события леджера в порядке их выпуска.
// Ошибка публикации не откатывает мутацию: авторитетным журналом
// остаётся сам леджер, внешние получатели догоняют его реплеем.
type EventSink interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Config параметры леджера. Политики спорных мест поведения
// (одна подписка на пользователя, просроченные списания) заданы
// явными именованными параметрами, а не зашиты в код.
type Config struct {
	AcceptedTokens []string `yaml:"accepted_tokens"`
	RelayerAddress string   `yaml:"relayer_address"`
	FeeMEnabled    bool     `yaml:"feem_enabled"`
	// MaxActiveSubscriptions предел одновременно активных подписок
	// на одного пользователя. По умолчанию 1.
	MaxActiveSubscriptions int `yaml:"max_active_subscriptions" env-default:"1"`
	// DelinquencyThreshold число подряд неуспешных списаний, после которого
	// подписка деактивируется. 0 — подписка остаётся активной всегда.
	DelinquencyThreshold int `yaml:"delinquency_threshold"`
}

// ChargeResult результат успешного списания.
type ChargeResult struct {
	Subscriber     string
	PlanID         string
	Amount         decimal.Decimal
	ReferenceID    string
	NextChargeTime time.Time
}

// Ledger единственный владелец состояния планов, подписок и счётчиков.
// Все мутации проходят через публичные операции под общим мьютексом.
type Ledger struct {
	log  *slog.Logger
	cfg  Config
	bank bank.Bank
	sink EventSink
	now  func() time.Time

	mu              sync.Mutex
	plans           map[string]*models.Plan
	planOrder       []string
	subs            map[string][]*models.Subscription
	supportedTokens map[string]struct{}
	merchantRevenue map[string]decimal.Decimal
	stats           models.GlobalStats
	planCounter     uint64
	membershipSeq   int64
	seq             int64
	journal         []models.Event
}

// New создает леджер с заданными политиками, банком и приёмником событий.
func New(cfg Config, b bank.Bank, sink EventSink, log *slog.Logger) *Ledger {
	if cfg.MaxActiveSubscriptions <= 0 {
		cfg.MaxActiveSubscriptions = 1
	}
	l := &Ledger{
		log:             log,
		cfg:             cfg,
		bank:            b,
		sink:            sink,
		now:             time.Now,
		plans:           make(map[string]*models.Plan),
		subs:            make(map[string][]*models.Subscription),
		supportedTokens: make(map[string]struct{}),
		merchantRevenue: make(map[string]decimal.Decimal),
	}
	for _, token := range cfg.AcceptedTokens {
		l.supportedTokens[token] = struct{}{}
	}
	return l
}

// SetClock подменяет источник времени. Используется тестами.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// emit назначает событию порядковый номер и ссылку, дописывает его в журнал
// и отдаёт внешнему приёмнику. Вызывается только под l.mu, чтобы порядок
// публикации совпадал с порядком номеров.
func (l *Ledger) emit(ctx context.Context, ev models.Event) models.Event {
	l.seq++
	ev.Seq = l.seq
	ev.ReferenceID = uuid.New().String()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = l.now()
	}
	l.journal = append(l.journal, ev)
	metrics.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
	if l.sink != nil {
		if err := l.sink.Publish(ctx, ev); err != nil {
			l.log.Warn("failed to publish ledger event",
				slog.Int64("seq", ev.Seq), slog.String("kind", string(ev.Kind)), sl.Err(err))
		}
	}
	return ev
}

// CreatePlan публикует новый план мерчанта. PlanID выводится детерминированно
// из (merchant, name, счётчик создания), что гарантирует уникальность без коллизий.
func (l *Ledger) CreatePlan(ctx context.Context, merchant, name string, price decimal.Decimal, interval time.Duration, supportsMembership bool, maxSubscribers int) (*models.Plan, error) {
	const op = "ledger.CreatePlan"

	if merchant == "" || name == "" {
		return nil, fmt.Errorf("%s: merchant and name are required: %w", op, ErrValidation)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%s: price must be positive: %w", op, ErrValidation)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive: %w", op, ErrValidation)
	}
	if maxSubscribers == 0 {
		return nil, fmt.Errorf("%s: max subscribers must not be zero: %w", op, ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.planCounter++
	planID := derivePlanID(merchant, name, l.planCounter)
	plan := &models.Plan{
		PlanID:             planID,
		Merchant:           merchant,
		Name:               name,
		Price:              price,
		Interval:           interval,
		Active:             true,
		SupportsMembership: supportsMembership,
		MaxSubscribers:     maxSubscribers,
	}
	l.plans[planID] = plan
	l.planOrder = append(l.planOrder, planID)
	l.stats.TotalPlans++

	l.emit(ctx, models.Event{
		Kind:               models.EventPlanCreated,
		PlanID:             planID,
		Merchant:           merchant,
		PlanName:           name,
		Amount:             price,
		IntervalSeconds:    int64(interval / time.Second),
		SupportsMembership: supportsMembership,
		MaxSubscribers:     maxSubscribers,
	})
	l.log.Info("plan created", slog.String("plan_id", planID), slog.String("merchant", merchant))

	cp := *plan
	return &cp, nil
}

// Subscribe оформляет подписку на план. Первый период списывается сразу;
// при включённой поддержке членского токена к подписке прикрепляется
// его идентификатор. Любой отказ оставляет состояние нетронутым.
func (l *Ledger) Subscribe(ctx context.Context, subscriber, planID, token string) (*models.Subscription, error) {
	const op = "ledger.Subscribe"

	l.mu.Lock()
	defer l.mu.Unlock()

	plan, ok := l.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if !plan.Active {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanInactive)
	}
	if plan.CurrentSubscribers >= plan.MaxSubscribers {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanFull)
	}
	if l.activeSubscriptionCount(subscriber) >= l.cfg.MaxActiveSubscriptions {
		return nil, fmt.Errorf("%s: %w", op, ErrDuplicateSubscription)
	}
	if _, ok := l.supportedTokens[token]; !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUnsupportedToken)
	}

	if err := l.bank.TransferFrom(ctx, token, subscriber, plan.Merchant, plan.Price); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classifyBankError(err))
	}

	now := l.now()
	sub := &models.Subscription{
		Subscriber:     subscriber,
		PlanID:         planID,
		Active:         true,
		NextChargeTime: now.Add(plan.Interval),
		LastChargeTime: now,
		TotalPaid:      plan.Price,
	}
	if plan.SupportsMembership {
		l.membershipSeq++
		sub.MembershipTokenID = l.membershipSeq
	}
	l.subs[subscriber] = append(l.subs[subscriber], sub)
	plan.CurrentSubscribers++
	l.stats.TotalSubscriptions++

	l.emit(ctx, models.Event{
		Kind:              models.EventSubscribed,
		PlanID:            planID,
		Merchant:          plan.Merchant,
		Subscriber:        subscriber,
		Amount:            plan.Price,
		IntervalSeconds:   int64(plan.Interval / time.Second),
		MembershipTokenID: sub.MembershipTokenID,
		NextChargeTime:    sub.NextChargeTime,
		OccurredAt:        now,
	})
	l.log.Info("subscription created",
		slog.String("subscriber", subscriber), slog.String("plan_id", planID))

	cp := *sub
	return &cp, nil
}

// ProcessPayment проводит очередное списание по активной подписке.
// Вызов неавторизован намеренно: платёж может инициировать кто угодно,
// включая планировщик или третью сторону.
func (l *Ledger) ProcessPayment(ctx context.Context, subscriber, token string) (*ChargeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processPaymentLocked(ctx, subscriber, token)
}

// processPaymentLocked общая реализация списания. Вызывается только под l.mu;
// используется и одиночным ProcessPayment, и пакетным путём релеера.
func (l *Ledger) processPaymentLocked(ctx context.Context, subscriber, token string) (*ChargeResult, error) {
	const op = "ledger.ProcessPayment"

	sub := l.activeSubscription(subscriber)
	if sub == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
	}
	if _, ok := l.supportedTokens[token]; !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUnsupportedToken)
	}
	plan, ok := l.plans[sub.PlanID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if !plan.Active {
		// Подписка на деактивированный план не продлевается молча:
		// попытка списания гасит её.
		l.deactivateSubscriptionLocked(ctx, sub, plan, "plan_inactive")
		return nil, fmt.Errorf("%s: %w", op, ErrPlanInactive)
	}
	now := l.now()
	if now.Before(sub.NextChargeTime) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotDue)
	}

	if err := l.bank.TransferFrom(ctx, token, subscriber, plan.Merchant, plan.Price); err != nil {
		classified := classifyBankError(err)
		metrics.ChargesTotal.WithLabelValues("failed").Inc()
		if l.cfg.DelinquencyThreshold > 0 {
			sub.FailedCharges++
			if sub.FailedCharges >= l.cfg.DelinquencyThreshold {
				l.deactivateSubscriptionLocked(ctx, sub, plan, "delinquent")
			}
		}
		return nil, fmt.Errorf("%s: %w", op, classified)
	}

	sub.FailedCharges = 0
	sub.LastChargeTime = now
	sub.NextChargeTime = sub.NextChargeTime.Add(plan.Interval)
	sub.TotalPaid = sub.TotalPaid.Add(plan.Price)
	l.merchantRevenue[plan.Merchant] = l.revenueOf(plan.Merchant).Add(plan.Price)
	l.stats.TotalRevenue = l.stats.TotalRevenue.Add(plan.Price)

	ev := l.emit(ctx, models.Event{
		Kind:           models.EventCharged,
		PlanID:         sub.PlanID,
		Merchant:       plan.Merchant,
		Subscriber:     subscriber,
		Amount:         plan.Price,
		NextChargeTime: sub.NextChargeTime,
		OccurredAt:     now,
	})
	metrics.ChargesTotal.WithLabelValues("success").Inc()
	l.log.Info("payment processed",
		slog.String("subscriber", subscriber), slog.String("plan_id", sub.PlanID),
		slog.String("amount", plan.Price.String()))

	return &ChargeResult{
		Subscriber:     subscriber,
		PlanID:         sub.PlanID,
		Amount:         plan.Price,
		ReferenceID:    ev.ReferenceID,
		NextChargeTime: sub.NextChargeTime,
	}, nil
}

// CancelSubscription гасит активную подписку пользователя и освобождает
// место в плане. Членский токен при этом считается отозванным.
func (l *Ledger) CancelSubscription(ctx context.Context, subscriber string) error {
	const op = "ledger.CancelSubscription"

	l.mu.Lock()
	defer l.mu.Unlock()

	sub := l.activeSubscription(subscriber)
	if sub == nil {
		return fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
	}
	plan := l.plans[sub.PlanID]
	l.deactivateSubscriptionLocked(ctx, sub, plan, "cancelled")
	return nil
}

// DeactivatePlan закрывает план для новых подписок. Доступно только
// создавшему план мерчанту; существующие подписки не обрываются,
// а гаснут при следующей попытке списания.
func (l *Ledger) DeactivatePlan(_ context.Context, merchant, planID string) error {
	const op = "ledger.DeactivatePlan"

	l.mu.Lock()
	defer l.mu.Unlock()

	plan, ok := l.plans[planID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if plan.Merchant != merchant {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	plan.Active = false
	l.log.Info("plan deactivated", slog.String("plan_id", planID))
	return nil
}

// AddSupportedToken расширяет список принимаемых расчётных токенов.
func (l *Ledger) AddSupportedToken(_ context.Context, token string) error {
	const op = "ledger.AddSupportedToken"

	if token == "" {
		return fmt.Errorf("%s: token is required: %w", op, ErrValidation)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supportedTokens[token] = struct{}{}
	l.log.Info("settlement token added", slog.String("token", token))
	return nil
}

// IsTokenSupported сообщает, входит ли токен в список принимаемых.
func (l *Ledger) IsTokenSupported(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.supportedTokens[token]
	return ok
}

// GetPlan возвращает копию плана по идентификатору.
func (l *Ledger) GetPlan(planID string) (*models.Plan, error) {
	const op = "ledger.GetPlan"

	l.mu.Lock()
	defer l.mu.Unlock()
	plan, ok := l.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	cp := *plan
	return &cp, nil
}

// ListPlans возвращает активные планы в порядке создания.
func (l *Ledger) ListPlans() []*models.Plan {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Plan
	for _, id := range l.planOrder {
		if plan := l.plans[id]; plan.Active {
			cp := *plan
			out = append(out, &cp)
		}
	}
	return out
}

// GetUserSubscription возвращает копию активной подписки пользователя.
func (l *Ledger) GetUserSubscription(subscriber string) (*models.Subscription, error) {
	const op = "ledger.GetUserSubscription"

	l.mu.Lock()
	defer l.mu.Unlock()
	sub := l.activeSubscription(subscriber)
	if sub == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
	}
	cp := *sub
	return &cp, nil
}

// GetMerchantStats возвращает проекцию статистики мерчанта,
// вычисленную из текущего состояния планов и подписок.
func (l *Ledger) GetMerchantStats(merchant string) models.MerchantStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := models.MerchantStats{Revenue: l.revenueOf(merchant)}
	for _, plan := range l.plans {
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

// GetGlobalStats возвращает глобальные счётчики платформы.
func (l *Ledger) GetGlobalStats() models.GlobalStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// EventsSince возвращает события журнала с номерами строго больше seq.
// Журнал леджера служит источником истины для реплея проекций.
func (l *Ledger) EventsSince(seq int64) []models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Event
	for _, ev := range l.journal {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

func (l *Ledger) activeSubscription(subscriber string) *models.Subscription {
	for _, sub := range l.subs[subscriber] {
		if sub.Active {
			return sub
		}
	}
	return nil
}

func (l *Ledger) activeSubscriptionCount(subscriber string) int {
	n := 0
	for _, sub := range l.subs[subscriber] {
		if sub.Active {
			n++
		}
	}
	return n
}

func (l *Ledger) revenueOf(merchant string) decimal.Decimal {
	if rev, ok := l.merchantRevenue[merchant]; ok {
		return rev
	}
	return decimal.Zero
}

func (l *Ledger) deactivateSubscriptionLocked(ctx context.Context, sub *models.Subscription, plan *models.Plan, reason string) {
	sub.Active = false
	if plan != nil && plan.CurrentSubscribers > 0 {
		plan.CurrentSubscribers--
	}
	l.emit(ctx, models.Event{
		Kind:              models.EventCancelled,
		PlanID:            sub.PlanID,
		Merchant:          planMerchant(plan),
		Subscriber:        sub.Subscriber,
		MembershipTokenID: sub.MembershipTokenID,
		Reason:            reason,
	})
	l.log.Info("subscription cancelled",
		slog.String("subscriber", sub.Subscriber), slog.String("reason", reason))
}

func planMerchant(plan *models.Plan) string {
	if plan == nil {
		return ""
	}
	return plan.Merchant
}

func classifyBankError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bank.ErrInsufficientAllowance):
		return ErrInsufficientAllowance
	case errors.Is(err, bank.ErrInsufficientFunds):
		return ErrInsufficientFunds
	default:
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
}

func derivePlanID(merchant, name string, counter uint64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", merchant, name, counter))
	return hex.EncodeToString(sum[:])
}
