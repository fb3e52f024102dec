package mq

import (
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Message 消费端看到的消息
type Message struct {
	ID         string
	RoutingKey string
	TraceID    string
	Body       json.RawMessage
	Timestamp  time.Time
}

func fromDelivery(d amqp091.Delivery) Message {
	msg := Message{
		ID:         d.MessageId,
		RoutingKey: d.RoutingKey,
		Body:       d.Body,
		Timestamp:  d.Timestamp,
	}
	if v, ok := d.Headers[headerTraceID].(string); ok {
		msg.TraceID = v
	}
	return msg
}

const headerTraceID = "x-trace-id"
