package notify

import (
	"time"

	"github.com/spf13/viper"

	"github.com/garrymei/minimodules-order/internal/service/models/outbox"
)

func outboxMessage(eventName, tenantID string, body []byte, maxRetries int, now time.Time) outbox.Message {
	queue := viper.GetString("rabbitmq.events_queue")
	if queue == "" {
		queue = "order.events"
	}

	return outbox.Message{
		EventName:   eventName,
		QueueName:   queue,
		RoutingKey:  queue,
		Payload:     body,
		ContentType: "application/json",
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	}
}
