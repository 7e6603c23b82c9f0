// Package sdk реализует фасад расчетного сервиса: тонкий слой композиции
// над леджером, банком, архивом событий и кешем. Мутации возвращают
// структурированный результат с классифицированной ошибкой, чтения —
// проекцию или типизированную ошибку, но никогда сырой сбой нижнего слоя.
package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonicpay/subscrypt/internal/bank"
	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Ledger операции расчетного леджера, используемые фасадом.
type Ledger interface {
	CreatePlan(ctx context.Context, merchant, name string, price decimal.Decimal, interval time.Duration, supportsMembership bool, maxSubscribers int) (*models.Plan, error)
	Subscribe(ctx context.Context, subscriber, planID, token string) (*models.Subscription, error)
	ProcessPayment(ctx context.Context, subscriber, token string) (*ledger.ChargeResult, error)
	ProcessBatchPayments(ctx context.Context, relayer string, subscribers []string, token string, amounts []decimal.Decimal) ([]models.BatchEntryResult, error)
	CancelSubscription(ctx context.Context, subscriber string) error
	DeactivatePlan(ctx context.Context, merchant, planID string) error
	AddSupportedToken(ctx context.Context, token string) error
	GetPlan(planID string) (*models.Plan, error)
	ListPlans() []*models.Plan
	GetUserSubscription(subscriber string) (*models.Subscription, error)
	GetMerchantStats(merchant string) models.MerchantStats
	GetGlobalStats() models.GlobalStats
}

// Archive история платежей, производная от архива событий.
type Archive interface {
	ListCharges(ctx context.Context, subscriber string, limit int) ([]models.PaymentHistoryEntry, error)
}

// Cache описывает методы для кеширования данных чтения.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Config параметры фасада: признаки доступности релеера
// для проверки безгазовых платежей.
type Config struct {
	FeeMEnabled    bool
	RelayerAddress string
}

const (
	planCacheTTL  = 5 * time.Minute
	statsCacheTTL = 30 * time.Second
)

// SDK фасад расчетного сервиса.
type SDK struct {
	ledger  Ledger
	bank    bank.Bank
	archive Archive
	cache   Cache
	cfg     Config
	log     *slog.Logger
}

// New создает фасад. archive и cache могут быть nil: тогда недоступна
// история платежей, а чтения идут напрямую в леджер.
func New(l Ledger, b bank.Bank, archive Archive, cache Cache, cfg Config, log *slog.Logger) *SDK {
	return &SDK{ledger: l, bank: b, archive: archive, cache: cache, cfg: cfg, log: log}
}

// CreatePlan публикует план и возвращает его вместе с результатом мутации.
func (s *SDK) CreatePlan(ctx context.Context, req models.DummyPlan) (models.MutationResult, *models.Plan) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return failure(fmt.Errorf("invalid price: %w", ledger.ErrValidation)), nil
	}

	plan, err := s.ledger.CreatePlan(ctx, req.Merchant, req.Name, price,
		time.Duration(req.IntervalSeconds)*time.Second, req.SupportsMembership, req.MaxSubscribers)
	if err != nil {
		return failure(err), nil
	}
	s.invalidate(ctx, "stats:global", "stats:merchant:"+req.Merchant)
	return models.MutationResult{Success: true, ReferenceID: plan.PlanID}, plan
}

// Subscribe оформляет подписку на план.
func (s *SDK) Subscribe(ctx context.Context, req models.DummySubscribe) (models.MutationResult, *models.Subscription) {
	sub, err := s.ledger.Subscribe(ctx, req.Subscriber, req.PlanID, req.Token)
	if err != nil {
		return failure(err), nil
	}
	s.invalidate(ctx, "plan:"+req.PlanID, "stats:global")
	return models.MutationResult{Success: true, ReferenceID: req.PlanID}, sub
}

// ProcessPayment проводит очередное списание.
func (s *SDK) ProcessPayment(ctx context.Context, req models.DummyCharge) (models.MutationResult, *ledger.ChargeResult) {
	res, err := s.ledger.ProcessPayment(ctx, req.Subscriber, req.Token)
	if err != nil {
		return failure(err), nil
	}
	s.invalidate(ctx, "stats:global")
	return models.MutationResult{Success: true, ReferenceID: res.ReferenceID}, res
}

// ProcessBatch проводит пакетное списание через путь релеера.
// Возвращает результат по каждой записи; частичный неуспех пакета
// не считается неуспехом мутации.
func (s *SDK) ProcessBatch(ctx context.Context, req models.DummyBatch) (models.MutationResult, []models.BatchEntryResult) {
	amounts := make([]decimal.Decimal, 0, len(req.Amounts))
	for _, raw := range req.Amounts {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return failure(fmt.Errorf("invalid amount %q: %w", raw, ledger.ErrValidation)), nil
		}
		amounts = append(amounts, amount)
	}

	results, err := s.ledger.ProcessBatchPayments(ctx, req.Relayer, req.Subscribers, req.Token, amounts)
	if err != nil {
		return failure(err), nil
	}
	s.invalidate(ctx, "stats:global")
	return models.MutationResult{Success: true}, results
}

// CancelSubscription гасит активную подписку пользователя.
func (s *SDK) CancelSubscription(ctx context.Context, subscriber string) models.MutationResult {
	if err := s.ledger.CancelSubscription(ctx, subscriber); err != nil {
		return failure(err)
	}
	s.invalidate(ctx, "stats:global")
	return models.MutationResult{Success: true}
}

// DeactivatePlan закрывает план для новых подписок.
func (s *SDK) DeactivatePlan(ctx context.Context, merchant, planID string) models.MutationResult {
	if err := s.ledger.DeactivatePlan(ctx, merchant, planID); err != nil {
		return failure(err)
	}
	s.invalidate(ctx, "plan:"+planID, "stats:merchant:"+merchant)
	return models.MutationResult{Success: true, ReferenceID: planID}
}

// AddSupportedToken расширяет список принимаемых расчётных токенов.
func (s *SDK) AddSupportedToken(ctx context.Context, token string) models.MutationResult {
	if err := s.ledger.AddSupportedToken(ctx, token); err != nil {
		return failure(err)
	}
	return models.MutationResult{Success: true}
}

// GetPlan возвращает план, используя кеш или леджер.
func (s *SDK) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	key := "plan:" + planID
	var cached models.Plan
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	plan, err := s.ledger.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, plan, planCacheTTL)
	return plan, nil
}

// ListPlans возвращает активные планы.
func (s *SDK) ListPlans(_ context.Context) []*models.Plan {
	return s.ledger.ListPlans()
}

// GetUserSubscription возвращает активную подписку пользователя.
func (s *SDK) GetUserSubscription(_ context.Context, subscriber string) (*models.Subscription, error) {
	return s.ledger.GetUserSubscription(subscriber)
}

// GetMerchantStats возвращает статистику мерчанта, используя кеш или леджер.
func (s *SDK) GetMerchantStats(ctx context.Context, merchant string) models.MerchantStats {
	key := "stats:merchant:" + merchant
	var cached models.MerchantStats
	if s.cacheGet(ctx, key, &cached) {
		return cached
	}
	stats := s.ledger.GetMerchantStats(merchant)
	s.cacheSet(ctx, key, stats, statsCacheTTL)
	return stats
}

// GetGlobalStats возвращает глобальные счётчики, используя кеш или леджер.
func (s *SDK) GetGlobalStats(ctx context.Context) models.GlobalStats {
	var cached models.GlobalStats
	if s.cacheGet(ctx, "stats:global", &cached) {
		return cached
	}
	stats := s.ledger.GetGlobalStats()
	s.cacheSet(ctx, "stats:global", stats, statsCacheTTL)
	return stats
}

// GetPaymentHistory возвращает историю платежей подписчика из архива событий.
func (s *SDK) GetPaymentHistory(ctx context.Context, subscriber string, limit int) ([]models.PaymentHistoryEntry, error) {
	const op = "sdk.GetPaymentHistory"
	if s.archive == nil {
		return nil, fmt.Errorf("%s: archive is not configured", op)
	}
	history, err := s.archive.ListCharges(ctx, subscriber, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return history, nil
}

// CanPayGasless проверяет возможность безгазового платежа: доступность
// релеера в сочетании с текущими allowance и балансом пользователя
// относительно цены плана.
func (s *SDK) CanPayGasless(ctx context.Context, subscriber, planID, token string) (models.GaslessCapability, error) {
	cap := models.GaslessCapability{
		FeeMAvailable: s.cfg.FeeMEnabled && s.cfg.RelayerAddress != "",
		Allowance:     decimal.Zero,
		Balance:       decimal.Zero,
		Required:      decimal.Zero,
	}

	plan, err := s.ledger.GetPlan(planID)
	if err != nil {
		return cap, err
	}
	cap.Required = plan.Price

	allowance, err := s.bank.Allowance(ctx, token, subscriber)
	if err != nil {
		return cap, fmt.Errorf("failed to check allowance: %w", err)
	}
	balance, err := s.bank.BalanceOf(ctx, token, subscriber)
	if err != nil {
		return cap, fmt.Errorf("failed to check balance: %w", err)
	}

	cap.Allowance = allowance
	cap.Balance = balance
	cap.HasAllowance = allowance.GreaterThanOrEqual(plan.Price)
	cap.HasBalance = balance.GreaterThanOrEqual(plan.Price)
	cap.CanPayGasless = cap.FeeMAvailable && cap.HasAllowance && cap.HasBalance
	return cap, nil
}

func (s *SDK) cacheGet(ctx context.Context, key string, result any) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, result)
	if err != nil {
		s.log.Warn("cache read failed", slog.String("key", key), sl.Err(err))
		return false
	}
	return found
}

func (s *SDK) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.Warn("cache write failed", slog.String("key", key), sl.Err(err))
	}
}

func (s *SDK) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	for _, key := range keys {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.log.Warn("cache invalidation failed", slog.String("key", key), sl.Err(err))
		}
	}
}

func failure(err error) models.MutationResult {
	return models.MutationResult{Error: ledger.Kind(err)}
}
