// Package sender собирает приложение-отправитель почтовых уведомлений.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/credential-engine/internal/config"
	smtpx "github.com/magabrotheeeer/credential-engine/internal/lib/smtp"
	"github.com/magabrotheeeer/credential-engine/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/credential-engine/internal/services/sender"
)

// App инкапсулирует подключение к очереди и сервис отправки писем.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	mailQueue     string
	logger        *slog.Logger
}

// New собирает приложение-отправитель: очередь уведомлений и SMTP-транспорт.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.ConnectRetries, cfg.ConnectDelay)
	if err != nil {
		return nil, err
	}

	queues := []rabbitmq.QueueConfig{
		{QueueName: cfg.MailQueue, RoutingKey: cfg.MailRoutingKey},
	}
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		conn.Close()
		return nil, err
	}

	newTransport := smtpx.NewTransport(cfg.SMTPConnection, logger)
	senderService := senderservice.NewSenderService(logger, newTransport)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		mailQueue:     cfg.MailQueue,
		logger:        logger,
	}, nil
}

// Run запускает потребителя почтовой очереди и ждет отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, a.mailQueue, a.senderService.SendAuthEmail)
	if err != nil {
		a.logger.Error("failed to start mail queue consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
