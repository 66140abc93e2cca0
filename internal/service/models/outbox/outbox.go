package outbox

import (
	"time"
)

// Message is a lifecycle event waiting to be published to RabbitMQ. Events
// are enqueued after the owning transaction commits and delivered by the
// outbox worker with retry and backoff.
type Message struct {
	ID           int64
	EventName    string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Payload      []byte
	ContentType  string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRetryAt  time.Time
}
