package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// DLQExchangeName 返回死信 exchange 名称
func DLQExchangeName(exchange string) string {
	return exchangeOrDefault(exchange) + ".dlq"
}

// DLQQueueName 返回队列对应的死信队列名称
func DLQQueueName(queue string) string {
	return queue + ".dlq"
}

// DeclareDLQ 声明死信 exchange 和队列，并按原 routing key 绑定
func DeclareDLQ(ch *amqp091.Channel, exchange, queue, routingKey string) (amqp091.Queue, error) {
	dlx := DLQExchangeName(exchange)
	if err := DeclareExchange(ch, dlx); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		DLQQueueName(queue),
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, dlx, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}
