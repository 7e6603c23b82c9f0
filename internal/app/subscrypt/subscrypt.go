// Package subscrypt собирает процесс расчетного сервиса: леджер с банком,
// архив событий в Postgres, публикацию событий в RabbitMQ, кеш чтения
// в Redis и HTTP API фасада.
package subscrypt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/sonicpay/subscrypt/internal/bank"
	"github.com/sonicpay/subscrypt/internal/cache"
	"github.com/sonicpay/subscrypt/internal/config"
	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/lib/rabbitmq"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/migrations"
	"github.com/sonicpay/subscrypt/internal/models"
	"github.com/sonicpay/subscrypt/internal/services/sdk"
	"github.com/sonicpay/subscrypt/internal/storage/repository"
)

// App инкапсулирует HTTP-сервер и подключения процесса.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	rabbit *amqp.Connection
}

// eventSink раздает события леджера в архив и брокер. Запись в архив
// синхронна: событие считается опубликованным только после фиксации
// в Postgres, доставка в брокер поверх этого — как минимум один раз.
type eventSink struct {
	db *repository.Storage
	ch *amqp.Channel
}

func (s *eventSink) Publish(ctx context.Context, ev models.Event) error {
	if err := s.db.AppendEvent(ctx, ev); err != nil {
		return err
	}
	return rabbitmq.PublishEvent(s.ch, ev)
}

// New инициализирует все подключения и собирает приложение.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	rabbitCh, err := rabbitmq.SetupChannel(rabbitConn, rabbitmq.EventQueues(cfg.EventQueue))
	if err != nil {
		return nil, err
	}

	tokenBank := bank.NewInMemoryBank()
	sink := &eventSink{db: db, ch: rabbitCh}
	ledgerCore := ledger.New(cfg.Ledger, tokenBank, sink, logger)

	facade := sdk.New(ledgerCore, tokenBank, db, cacheRedis, sdk.Config{
		FeeMEnabled:    cfg.Ledger.FeeMEnabled,
		RelayerAddress: cfg.Ledger.RelayerAddress,
	}, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, facade, db)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		rabbit: rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", sl.Err(closeErr))
		}
		if closeErr := a.rabbit.Close(); closeErr != nil {
			a.logger.Error("failed to close rabbitmq connection", sl.Err(closeErr))
		}
		return err
	}
}
