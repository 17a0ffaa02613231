// Package notifier публикует почтовые уведомления в очередь RabbitMQ.
// Доставкой занимается отдельный сервис-отправитель.
package notifier

import (
	"fmt"

	"github.com/streadway/amqp"

	librabbitmq "github.com/magabrotheeeer/credential-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credential-engine/internal/models"
	"github.com/magabrotheeeer/credential-engine/internal/rabbitmq"
)

// MailPublisher публикует EmailMessage в обменник уведомлений.
type MailPublisher struct {
	ch         *amqp.Channel
	routingKey string
}

// New создает новый экземпляр MailPublisher.
func New(ch *amqp.Channel, routingKey string) *MailPublisher {
	return &MailPublisher{
		ch:         ch,
		routingKey: routingKey,
	}
}

// Notify ставит письмо в очередь отправки.
func (p *MailPublisher) Notify(to, subject, body string) error {
	const op = "notifier.Notify"
	msg := models.EmailMessage{
		To:      to,
		Subject: subject,
		Body:    body,
	}
	if err := librabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, p.routingKey, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
