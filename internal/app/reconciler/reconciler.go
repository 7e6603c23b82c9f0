// Package reconciler собирает процесс сверки: проекция состояния леджера
// восстанавливается воспроизведением архива с начала журнала, после чего
// сопровождается потоком событий из RabbitMQ.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/sonicpay/subscrypt/internal/config"
	"github.com/sonicpay/subscrypt/internal/lib/rabbitmq"
	reconcilerservice "github.com/sonicpay/subscrypt/internal/services/reconciler"
	"github.com/sonicpay/subscrypt/internal/storage/repository"
)

// replayPageSize размер страницы при воспроизведении журнала из архива.
const replayPageSize = 500

// App представляет приложение сверки.
type App struct {
	reconciler *reconcilerservice.Reconciler
	db         *repository.Storage
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	logger     *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения сверки.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(db); err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.EventQueues(cfg.EventQueue))
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("failed to close connection", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	return &App{
		reconciler: reconcilerservice.New(db, logger),
		db:         db,
		conn:       conn,
		ch:         ch,
		queue:      cfg.EventQueue,
		logger:     logger,
	}, nil
}

// bootstrap восстанавливает проекцию воспроизведением журнала с начала.
// События, доставленные брокером во время воспроизведения, безопасны:
// применение идемпотентно по Seq.
func (a *App) bootstrap(ctx context.Context) error {
	for {
		page, err := a.db.ListEventsAfter(ctx, a.reconciler.LastSeq(), replayPageSize)
		if err != nil {
			return fmt.Errorf("failed to replay archive: %w", err)
		}
		if len(page) == 0 {
			a.logger.Info("archive replay finished", slog.Int64("last_seq", a.reconciler.LastSeq()))
			return nil
		}
		a.reconciler.Replay(page)
	}
}

// Run восстанавливает проекцию и переходит к потреблению потока событий.
func (a *App) Run(ctx context.Context) error {
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	if err := rabbitmq.ConsumeEvents(ctx, a.ch, a.queue, a.logger, a.reconciler.HandleEvent); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}
	a.logger.Info("reconciler consuming ledger events", slog.String("queue", a.queue))

	<-ctx.Done()

	a.logger.Info("shutting down reconciler")
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", slog.Any("err", err))
	}
	return nil
}
