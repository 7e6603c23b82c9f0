// Package scheduler собирает процесс планировщика платежей: HTTP-клиент
// леджера, локальный реестр отслеживаемых подписок и потребление журнала
// событий из RabbitMQ для его сопровождения.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/sonicpay/subscrypt/internal/config"
	"github.com/sonicpay/subscrypt/internal/ledgerclient"
	"github.com/sonicpay/subscrypt/internal/lib/rabbitmq"
	"github.com/sonicpay/subscrypt/internal/models"
	schedulerservice "github.com/sonicpay/subscrypt/internal/services/scheduler"
)

// App представляет приложение планировщика.
type App struct {
	scheduler *schedulerservice.Scheduler
	conn      *amqp.Connection
	ch        *amqp.Channel
	queue     string
	logger    *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.EventQueues(cfg.Scheduler.EventQueue))
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	client := ledgerclient.New(cfg.Scheduler.LedgerAddress, cfg.Scheduler.RequestTimeout)
	svc := schedulerservice.New(client, schedulerservice.Config{
		SettlementToken:   cfg.Scheduler.SettlementToken,
		SweepInterval:     cfg.Scheduler.SweepInterval,
		ReconcileInterval: cfg.Scheduler.ReconcileInterval,
		RequestTimeout:    cfg.Scheduler.RequestTimeout,
	}, logger)

	return &App{
		scheduler: svc,
		conn:      conn,
		ch:        ch,
		queue:     cfg.Scheduler.EventQueue,
		logger:    logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает планировщик: поток событий журнала сопровождает реестр,
// циклы списаний и сверки идут по таймерам до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	events := make(chan models.Event)
	a.scheduler.ObserveEvents(ctx, events)

	err := rabbitmq.ConsumeEvents(ctx, a.ch, a.queue, a.logger, func(ev models.Event) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		closeResources(a.ch, a.conn, a.logger)
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	a.scheduler.Start(ctx)

	<-ctx.Done()

	a.logger.Info("shutting down scheduler")
	a.scheduler.Stop()
	closeResources(a.ch, a.conn, a.logger)
	return nil
}
