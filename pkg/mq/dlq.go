package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "events.dlq"
)

func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares <queue>.dlq bound to the DLQ exchange with bindingKey.
func DeclareDLQQueue(ch *amqp091.Channel, queue, bindingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		fmt.Sprintf("%s.dlq", queue),
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, bindingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

// DeclareDLQ declares the parking queue for queue on the publisher's channel.
func (p *Publisher) DeclareDLQ(queue, bindingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := DeclareDLQQueue(p.channel, queue, bindingKey)
	return err
}

// PublishToDLQ parks a message that can never succeed, recording why and where it failed.
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, failedAt, originalError string) error {
	headers := amqp091.Table{
		"x-original-error": originalError,
		"x-failed-at":      failedAt,
		"x-failed-time":    time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, DLQExchangeName, routingKey, payload, headers)
}
